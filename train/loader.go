package train

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/twoears/scenetcn/train/trace"
)

// BufferState is the lifecycle state of a scene-instance buffer.
type BufferState int

const (
	// StateEmpty: constructed, nothing loaded yet.
	StateEmpty BufferState = iota
	// StateFilling: loading scene instance files into free pool slots.
	StateFilling
	// StateReady: the pool can serve at least one row.
	StateReady
	// StateDraining: assembling a batch for Next.
	StateDraining
	// StateExhausted: no file left and no entry can serve a full window.
	StateExhausted
)

func (s BufferState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("BufferState(%d)", int(s))
}

// LoaderConfig configures a batch loader.
type LoaderConfig struct {
	BatchSize         int       // rows per batch
	BlockLength       int       // frames per row (a.k.a. batch length)
	LabelMode         LabelMode // instant or block-based label interpretation
	SceneInstancesMax int       // pool capacity in scene instances

	MultiProc    bool          // produce batches in background goroutines
	BatchBufSize int           // queue capacity in multi-process mode
	Workers      int           // producer goroutines in multi-process mode (default 1)
	BatchTimeout time.Duration // bound on a consumer wait in multi-process mode (0 = none)

	Selection string // SelectionRandom (default) or SelectionRoundRobin

	// Training feature statistics for standardization; nil disables it.
	FeatureMean []float32
	FeatureStd  []float32

	Trace  *trace.LoaderTrace // optional window recording
	Logger logrus.FieldLogger // nil logs to the standard logger
}

// Validate checks the configuration.
func (c LoaderConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Wrapf(ErrConfiguration, "batch size must be positive, got %d", c.BatchSize)
	}
	if c.BlockLength <= 0 {
		return errors.Wrapf(ErrConfiguration, "block length must be positive, got %d", c.BlockLength)
	}
	if c.SceneInstancesMax <= 0 {
		return errors.Wrapf(ErrConfiguration, "scene instance buffer size must be positive, got %d", c.SceneInstancesMax)
	}
	if c.MultiProc && c.BatchBufSize <= 0 {
		return errors.Wrapf(ErrConfiguration, "batch buffer size must be positive, got %d", c.BatchBufSize)
	}
	if !ValidSelectionPolicies[c.Selection] {
		return errors.Wrapf(ErrConfiguration, "unknown selection policy %q", c.Selection)
	}
	if c.LabelMode != LabelModeInstant && c.LabelMode != LabelModeBlockBased {
		return errors.Wrapf(ErrConfiguration, "unknown label mode %q", c.LabelMode)
	}
	return nil
}

func (c LoaderConfig) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// BatchLoader streams BatchWindows. Next returns ErrLoaderExhausted once the
// stream has ended; that is the normal end of an epoch, not a failure.
type BatchLoader interface {
	Next(ctx context.Context) (*BatchWindow, error)
	Close() error
}

// NewLoader builds the loader of one epoch: a SingleProcLoader, or a
// MultiProcLoader when cfg.MultiProc is set. Each epoch draws its own RNG subsystems.
func NewLoader(cfg LoaderConfig, files []SceneFile, reader SceneReader, rng *PartitionedRNG, epoch int) (BatchLoader, error) {
	if !cfg.MultiProc {
		return NewSingleProcLoader(cfg, files, reader, rng.ForSubsystem(SubsystemEpoch(epoch)))
	}
	return NewMultiProcLoader(cfg, files, reader, rng, epoch)
}

// poolEntry is one buffered scene instance and its read cursor.
// Owned by exactly one SingleProcLoader.
type poolEntry struct {
	scene  *SceneInstance
	labels []int32 // interpreted under the loader's label mode
	cursor int
}

func (e *poolEntry) remaining() int {
	return e.scene.Length() - e.cursor
}

// SingleProcLoader is the scene-instance buffer. It keeps up to
// SceneInstancesMax entries in fixed pool slots, serves each row of a batch
// from one entry's cursor, and replaces an entry in its slot as soon as the
// entry cannot serve another full window. Tails shorter than BlockLength are
// dropped. Every frame is served at most once.
//
// Thread-safety: NOT thread-safe; used by a single goroutine.
type SingleProcLoader struct {
	cfg    LoaderConfig
	files  []SceneFile
	reader SceneReader
	policy SelectionPolicy
	log    logrus.FieldLogger

	state      BufferState
	nextFile   int
	pool       []*poolEntry // nil slots are free
	featureDim int          // set by the first usable scene instance
	labelDim   int

	loaded    int // usable scene instances loaded
	malformed int // scene files skipped as malformed
	short     int // scene instances shorter than one window
	batches   int
}

// NewSingleProcLoader creates a loader over files. rng drives random selection.
// It fails with ErrNoInputFiles when files is empty.
func NewSingleProcLoader(cfg LoaderConfig, files []SceneFile, reader SceneReader, rng *rand.Rand) (*SingleProcLoader, error) {
	if len(files) == 0 {
		return nil, errors.WithStack(ErrNoInputFiles)
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectionRandom
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, errors.Wrap(ErrConfiguration, "scene reader is required")
	}
	policy, err := NewSelectionPolicy(cfg.Selection, rng)
	if err != nil {
		return nil, errors.Wrap(ErrConfiguration, err.Error())
	}
	return &SingleProcLoader{
		cfg:    cfg,
		files:  append([]SceneFile(nil), files...),
		reader: reader,
		policy: policy,
		log:    cfg.logger(),
		state:  StateEmpty,
	}, nil
}

// State returns the buffer state.
func (l *SingleProcLoader) State() BufferState { return l.state }

// PoolSize returns the number of buffered entries.
func (l *SingleProcLoader) PoolSize() int { return len(l.eligible()) }

// Next assembles the next batch. Rows are drawn one at a time: the selection
// policy picks an eligible entry, its next BlockLength frames are copied and
// its cursor advances. When the stream ends mid-batch the remaining rows are
// padding. Next blocks on scene file loads; ctx is checked before assembly
// starts, never mid-batch.
func (l *SingleProcLoader) Next(ctx context.Context) (*BatchWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.state == StateExhausted {
		return nil, errors.WithStack(ErrLoaderExhausted)
	}
	if l.state == StateEmpty {
		if err := l.fill(); err != nil {
			return nil, err
		}
	}

	l.state = StateDraining
	b := NewBatchWindow(l.cfg.BatchSize, l.cfg.BlockLength, l.featureDim, l.labelDim)
	for row := 0; row < l.cfg.BatchSize; row++ {
		eligible := l.eligible()
		if len(eligible) == 0 {
			break
		}
		slot := l.policy.Select(eligible)
		l.drawRow(b, row, slot)
		if l.pool[slot].remaining() < l.cfg.BlockLength {
			l.pool[slot] = nil
			if err := l.fillSlot(slot); err != nil {
				return nil, err
			}
		}
	}

	if b.Rows() == 0 {
		l.state = StateExhausted
		return nil, errors.WithStack(ErrLoaderExhausted)
	}
	l.batches++
	if len(l.eligible()) == 0 {
		l.state = StateExhausted
	} else {
		l.state = StateReady
	}
	return b, nil
}

// Close releases the pool.
func (l *SingleProcLoader) Close() error {
	l.pool = nil
	l.state = StateExhausted
	return nil
}

// fill loads scene instances until the pool is full or no file remains.
func (l *SingleProcLoader) fill() error {
	l.state = StateFilling
	l.pool = make([]*poolEntry, 0, min(l.cfg.SceneInstancesMax, len(l.files)))
	var bytes uint64
	for len(l.pool) < l.cfg.SceneInstancesMax && l.nextFile < len(l.files) {
		entry, err := l.loadNext()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		l.pool = append(l.pool, entry)
		bytes += entry.scene.SizeBytes()
	}
	if len(l.pool) == 0 {
		l.state = StateExhausted
		if l.malformed > 0 && l.loaded == 0 {
			return errors.Wrapf(ErrMalformedScene, "no usable scene instance among %d files (%d malformed)", len(l.files), l.malformed)
		}
		return errors.WithStack(ErrLoaderExhausted)
	}
	l.log.Debugf("filled scene instance pool: %d entries (%s), %d of %d files read",
		len(l.pool), humanize.Bytes(bytes), l.nextFile, len(l.files))
	l.state = StateReady
	return nil
}

// fillSlot loads the next usable file into a free slot; the slot stays free
// when no file remains.
func (l *SingleProcLoader) fillSlot(slot int) error {
	entry, err := l.loadNext()
	if err != nil {
		return err
	}
	l.pool[slot] = entry
	return nil
}

// loadNext returns the next scene instance that can serve at least one window,
// or nil when the file list is used up. Malformed files are skipped and logged.
func (l *SingleProcLoader) loadNext() (*poolEntry, error) {
	for l.nextFile < len(l.files) {
		f := l.files[l.nextFile]
		l.nextFile++

		scene, err := l.reader.ReadScene(f)
		if err == nil {
			if scene.File == "" {
				scene.File = f.Path
			}
			err = scene.Validate()
		}
		if errors.Is(err, ErrMalformedScene) {
			l.malformed++
			l.log.Warnf("skipping scene instance: %v", err)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "loading scene instance %s", f.Path)
		}
		if err := l.checkDims(scene); err != nil {
			l.malformed++
			l.log.Warnf("skipping scene instance: %v", err)
			continue
		}
		if scene.Scene == 0 {
			scene.Scene = f.Scene
		}
		if scene.Fold == 0 {
			scene.Fold = f.Fold
		}
		if scene.Length() < l.cfg.BlockLength {
			l.short++
			l.log.Debugf("dropping scene instance %s: %d frames are fewer than one window of %d", f.Path, scene.Length(), l.cfg.BlockLength)
			continue
		}
		if l.loaded == 0 {
			l.featureDim, l.labelDim = scene.FeatureDim, scene.LabelDim
		}
		l.loaded++
		return &poolEntry{
			scene:  scene,
			labels: InterpretLabels(scene.Labels, scene.LabelDim, l.cfg.LabelMode),
		}, nil
	}
	return nil, nil
}

// eligible lists the occupied slots that can serve a full window, ascending.
func (l *SingleProcLoader) eligible() []int {
	slots := make([]int, 0, len(l.pool))
	for i, e := range l.pool {
		if e != nil && e.remaining() >= l.cfg.BlockLength {
			slots = append(slots, i)
		}
	}
	return slots
}

func (l *SingleProcLoader) drawRow(b *BatchWindow, row, slot int) {
	e := l.pool[slot]
	s := e.scene
	from, to := e.cursor, e.cursor+l.cfg.BlockLength

	features := b.RowFeatures(row)
	copy(features, s.Features[from*s.FeatureDim:to*s.FeatureDim])
	if l.cfg.FeatureMean != nil {
		standardize(features, l.cfg.FeatureMean, l.cfg.FeatureStd)
	}
	copy(b.RowLabels(row), e.labels[from*s.LabelDim:to*s.LabelDim])
	b.SceneIDs[row] = s.Scene
	b.Sources[row] = WindowSource{File: s.File, Offset: from}
	e.cursor = to

	if l.cfg.Trace != nil {
		l.cfg.Trace.Record(trace.WindowRecord{
			File:   s.File,
			Scene:  s.Scene,
			Offset: from,
			Length: l.cfg.BlockLength,
			Batch:  l.batches,
			Row:    row,
		})
	}
}

// checkDims rejects scene instances whose dimensions differ from the
// standardization statistics or from the instances already buffered.
func (l *SingleProcLoader) checkDims(scene *SceneInstance) error {
	if l.cfg.FeatureMean != nil && len(l.cfg.FeatureMean) != scene.FeatureDim {
		return errors.Wrapf(ErrMalformedScene, "%s: feature dimension %d does not match the standardization statistics (%d)",
			scene.File, scene.FeatureDim, len(l.cfg.FeatureMean))
	}
	if l.loaded > 0 && (scene.FeatureDim != l.featureDim || scene.LabelDim != l.labelDim) {
		return errors.Wrapf(ErrMalformedScene, "%s: dimensions %dx%d differ from the buffered %dx%d",
			scene.File, scene.FeatureDim, scene.LabelDim, l.featureDim, l.labelDim)
	}
	return nil
}

func standardize(features, mean, std []float32) {
	dim := len(mean)
	for i := range features {
		d := i % dim
		s := std[d]
		if s == 0 {
			s = 1
		}
		features[i] = (features[i] - mean[d]) / s
	}
}
