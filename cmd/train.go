package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/twoears/scenetcn/train"
	"github.com/twoears/scenetcn/train/dataset"
	"github.com/twoears/scenetcn/train/labelstats"
	"github.com/twoears/scenetcn/train/trace"
)

// runOptions are the settings of a run that are not part of its parameters.
type runOptions struct {
	Level      logrus.Level
	LabelStats string // label count database; empty keeps it in memory
	Force      bool   // run even if results exist
}

// runTraining performs one training run on fs: it refines and validates p,
// sets up the run's logs, computes loss weights and feature statistics over
// the training folds, builds the model, saves the parameters and runs the
// epoch loop. It returns an error when setup fails or no epoch completes.
func runTraining(ctx context.Context, fs afero.Fs, p train.RunParams, opts runOptions, stdout, stderr io.Writer) error {
	refinement := p.Refine()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid run parameters: %w", err)
	}
	name := RunName(p)

	store, err := train.NewArtifactStore(fs, p.Path, name)
	if err != nil {
		return err
	}
	if store.ResultsExist() && !opts.Force {
		fmt.Fprintf(stderr, "results for run %s already exist in %s; skipping (use --force to rerun)\n", name, p.Path)
		return nil
	}

	rc, err := train.NewRunContext(p, store, opts.Level, stdout, stderr)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := setupAndRun(ctx, fs, rc, refinement, opts); err != nil {
		rc.Fatal(err)
		return err
	}
	return nil
}

func setupAndRun(ctx context.Context, fs afero.Fs, rc *train.RunContext, refinement string, opts runOptions) error {
	p := rc.Params
	log := rc.Log
	log.Info("STARTING")
	log.Info(refinement)
	log.Infof("parameters: %# v", pretty.Formatter(p))
	log.Infof("name: %s", rc.Name)

	trainFolds, err := train.TrainFolds(p.ValidFold)
	if err != nil {
		return err
	}
	validFolds, err := train.ValidationFolds(p.ValidFold)
	if err != nil {
		return err
	}
	scenes := train.SceneIDs(p.FirstSceneOnly)

	files, err := dataset.LoadManifest(fs, p.Manifest)
	if err != nil {
		return err
	}
	trainFiles := train.FilterScope(files, trainFolds, scenes)
	validFiles := train.FilterScope(files, validFolds, scenes)
	if len(trainFiles) == 0 {
		return fmt.Errorf("no scene file of folds %v and %d scenes in %s: %w", trainFolds.IDs(), len(scenes), p.Manifest, train.ErrNoInputFiles)
	}
	log.Infof("training folds %v: %s scene files; validation folds %v: %s scene files",
		trainFolds.IDs(), humanize.Comma(int64(len(trainFiles))), validFolds.IDs(), humanize.Comma(int64(len(validFiles))))

	source, err := dataset.NewSource(fs, p.SceneCache)
	if err != nil {
		return err
	}
	counts, err := labelstats.Open(opts.LabelStats, train.ScanCounter{Reader: source})
	if err != nil {
		return err
	}
	defer counts.Close()

	weights, err := train.ComputeLossWeights(counts, trainFiles, p.LabelMode())
	if err != nil {
		return err
	}
	hits, misses := counts.Stats()
	log.Debugf("label counts: %d cached, %d scanned", hits, misses)
	log.Infof("loss weights (%d scenes): %s", len(weights.Scenes()), weights)

	stats, err := dataset.ComputeFeatureStats(source, trainFiles)
	if err != nil {
		return err
	}
	log.Infof("feature statistics over %s training frames", humanize.Comma(stats.Frames))

	loss := train.NewMaskedWeightedLoss(weights)
	log.Infof("constructed loss (masking labels with value %d) using loss weights", train.MaskValue)

	rng := train.NewPartitionedRNG(p.Seed)
	model, opt, err := train.BuildModel(p, rng, loss)
	if err != nil {
		return err
	}
	log.Infof("model compiled with optimizer %s:\n%s", opt.Name(), model.Summary())

	if err := rc.Store.SaveParams(p); err != nil {
		return err
	}

	cfg := train.LoaderConfig{
		BatchSize:         p.BatchSize,
		BlockLength:       p.BatchLength,
		LabelMode:         p.LabelMode(),
		SceneInstancesMax: p.SceneInstanceBufSize,
		MultiProc:         p.BatchBufMultiProc,
		BatchBufSize:      p.BatchBufSize,
		Workers:           p.Workers,
		BatchTimeout:      p.BatchTimeout,
		Selection:         p.Selection,
		FeatureMean:       stats.Mean,
		FeatureStd:        stats.Std,
		Logger:            log,
	}
	trainLoaders := func(epoch int) (train.BatchLoader, error) {
		epochCfg := cfg
		epochCfg.Trace = trace.NewLoaderTrace()
		l, err := train.NewLoader(epochCfg, trainFiles, source, rng, epoch)
		if err != nil {
			return nil, err
		}
		return &tracedLoader{BatchLoader: l, trace: epochCfg.Trace, epoch: epoch, log: log}, nil
	}

	var validLoaders train.LoaderFactory
	checkpointing := train.CheckpointNotConfigured
	if len(validFiles) > 0 {
		validCfg := cfg
		validCfg.MultiProc = false
		validCfg.Selection = train.SelectionRoundRobin
		validLoaders = func(epoch int) (train.BatchLoader, error) {
			return train.NewSingleProcLoader(validCfg, validFiles, source, nil)
		}
		checkpointing = train.CheckpointConfigured
	} else if validFolds.Len() > 0 {
		log.Warnf("validation folds %v hold no scene file; training without validation", validFolds.IDs())
	}

	o := train.NewOrchestrator(rc, model, loss, trainLoaders, validLoaders, checkpointing)
	outcome, err := o.Run(ctx)
	if err != nil {
		return err
	}
	if outcome.Err != nil {
		log.Warnf("run ended early after %d epochs: %v", outcome.EpochsCompleted, outcome.Err)
	}
	if p.SceneCache > 0 {
		reads, hits := source.Stats()
		log.Debugf("scene cache: %d of %d reads served from memory", hits, reads)
	}
	return nil
}

// tracedLoader logs what an epoch's loader served when it is closed.
type tracedLoader struct {
	train.BatchLoader
	trace *trace.LoaderTrace
	epoch int
	log   logrus.FieldLogger
}

func (t *tracedLoader) Close() error {
	err := t.BatchLoader.Close()
	s := trace.Summarize(t.trace)
	frames := 0
	for _, n := range s.FramesPerFile {
		frames += n
	}
	t.log.Debugf("epoch %d: %s windows (%s frames) from %d scene files", t.epoch,
		humanize.Comma(int64(s.TotalWindows)), humanize.Comma(int64(frames)), s.UniqueFiles)
	if s.Overlaps > 0 {
		t.log.Warnf("epoch %d: %d windows overlapped earlier windows of the same file", t.epoch, s.Overlaps)
	}
	return err
}
