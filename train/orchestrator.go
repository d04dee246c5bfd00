package train

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// RunState is the state of the epoch orchestrator.
type RunState int

const (
	RunNotStarted RunState = iota
	RunRunning
	RunContinuing
	RunEarlyStopped
	RunMaxEpochsReached
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunNotStarted:
		return "not_started"
	case RunRunning:
		return "running"
	case RunContinuing:
		return "continuing"
	case RunEarlyStopped:
		return "early_stopped"
	case RunMaxEpochsReached:
		return "max_epochs_reached"
	case RunFailed:
		return "failed"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// Checkpointing selects whether the best model is written after improving epochs.
type Checkpointing int

const (
	CheckpointNotConfigured Checkpointing = iota
	CheckpointConfigured
)

// LoaderFactory builds a fresh loader for a 1-based epoch.
type LoaderFactory func(epoch int) (BatchLoader, error)

// RunOutcome summarizes a finished run.
type RunOutcome struct {
	State           RunState
	EpochsCompleted int
	BestEpoch       int // 0 when no epoch improved the monitored metric
	Results         *ResultsRecord
	Err             error // failure after at least one completed epoch
}

// Orchestrator drives the epoch loop of one run.
type Orchestrator struct {
	rc            *RunContext
	model         Model
	loss          Loss
	trainLoaders  LoaderFactory
	validLoaders  LoaderFactory // nil without a validation fold
	stopper       *EarlyStopper
	checkpointing Checkpointing

	state RunState
	epoch int
}

// NewOrchestrator creates an orchestrator. validLoaders may be nil; early
// stopping monitors the validation BAC and is disabled without it.
func NewOrchestrator(rc *RunContext, model Model, loss Loss, trainLoaders, validLoaders LoaderFactory, checkpointing Checkpointing) *Orchestrator {
	patience := rc.Params.EarlyStop
	if validLoaders == nil && patience > 0 {
		rc.Log.Warnf("early stopping (patience %d) needs a validation fold; training for all %d epochs", patience, rc.Params.MaxEpochs)
		patience = -1
	}
	return &Orchestrator{
		rc:            rc,
		model:         model,
		loss:          loss,
		trainLoaders:  trainLoaders,
		validLoaders:  validLoaders,
		stopper:       NewEarlyStopper(patience),
		checkpointing: checkpointing,
		state:         RunNotStarted,
	}
}

// State returns the current state.
func (o *Orchestrator) State() RunState { return o.state }

// Epoch returns the epoch being run, 0 before the first one.
func (o *Orchestrator) Epoch() int { return o.epoch }

// Run trains for up to MaxEpochs epochs. The results record is written after
// every completed epoch. If no epoch completes, Run returns ErrNoProgress and
// leaves any existing results file untouched. A failure after at least one
// completed epoch ends the run in RunFailed with outcome.Err set and a nil error.
func (o *Orchestrator) Run(ctx context.Context) (*RunOutcome, error) {
	p := o.rc.Params
	log := o.rc.Log
	record := &ResultsRecord{Name: o.rc.Name, ValidFold: p.ValidFold}
	outcome := &RunOutcome{Results: record}

	o.state = RunRunning
	var runErr error
	for epoch := 1; epoch <= p.MaxEpochs; epoch++ {
		o.epoch = epoch
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		log.Infof("==> training epoch %d out of maximal %d", epoch, p.MaxEpochs)

		result, err := o.runEpoch(ctx, epoch)
		if err != nil {
			runErr = errors.Wrapf(err, "epoch %d", epoch)
			break
		}
		record.Append(result)

		if result.ValidBAC != nil {
			if o.stopper.Observe(epoch, *result.ValidBAC) {
				record.BestEpoch = epoch
				if o.checkpointing == CheckpointConfigured {
					if err := o.rc.Store.SaveModel(o.model); err != nil {
						runErr = err
						break
					}
					log.Infof("saved best model of epoch %d (valid BAC %.4f)", epoch, *result.ValidBAC)
				}
			}
		}

		record.State = RunContinuing.String()
		if err := o.rc.Store.SaveResults(record); err != nil {
			runErr = err
			break
		}
		log.Infof("epoch %d took %.1f minutes to run", epoch, result.DurationMinutes)

		if o.stopper.ShouldStop() {
			o.state = RunEarlyStopped
			_, best := o.stopper.Best()
			log.Infof("early stopping after epoch %d: no improvement for %d epochs (best epoch %d)", epoch, o.stopper.Patience, best)
			break
		}
		o.state = RunContinuing
	}

	outcome.EpochsCompleted = len(record.Epochs)
	outcome.BestEpoch = record.BestEpoch
	if outcome.EpochsCompleted == 0 {
		o.state = RunFailed
		outcome.State = o.state
		err := errors.Wrap(ErrNoProgress, "could not finish a single epoch; exiting before writing (nonexistent) results")
		if runErr != nil {
			err = errors.Wrapf(ErrNoProgress, "could not finish a single epoch: %v", runErr)
		}
		return outcome, err
	}

	switch {
	case runErr != nil:
		o.state = RunFailed
		outcome.Err = runErr
		log.Errorf("run failed after %d epochs: %v", outcome.EpochsCompleted, runErr)
	case o.state != RunEarlyStopped:
		o.state = RunMaxEpochsReached
	}
	outcome.State = o.state
	record.State = o.state.String()
	if err := o.rc.Store.SaveResults(record); err != nil {
		return outcome, err
	}
	log.Infof("training finished (%s): %d epochs, %.1f minutes in total", o.state, outcome.EpochsCompleted, record.Summary.Total)
	return outcome, nil
}

// runEpoch trains on a fresh loader until it is exhausted, then evaluates the
// validation fold if one is configured.
func (o *Orchestrator) runEpoch(ctx context.Context, epoch int) (EpochResult, error) {
	start := time.Now()
	result := EpochResult{Epoch: epoch}

	train, err := o.trainLoaders(epoch)
	if err != nil {
		return result, errors.Wrap(err, "building batch loader")
	}
	defer func() { _ = train.Close() }()
	o.rc.Log.Debug("initialized batch loader")

	var metrics *Metrics
	for {
		b, err := train.Next(ctx)
		if errors.Is(err, ErrLoaderExhausted) {
			break
		}
		if err != nil {
			return result, err
		}
		step, err := o.model.TrainOnBatch(b)
		if err != nil {
			return result, errors.Wrapf(err, "training on batch %d", result.Batches+1)
		}
		if metrics == nil {
			metrics = NewMetrics(b.LabelDim)
		}
		metrics.Add(b, step.Probs, step.Loss)
		result.Batches++
	}
	if result.Batches == 0 {
		return result, errors.Wrap(ErrLoaderExhausted, "the batch loader produced no batch")
	}
	result.TrainLoss = metrics.MeanLoss()
	result.TrainBAC = metrics.BAC()
	result.TrainSens = metrics.Sensitivity()
	result.TrainSpec = metrics.Specificity()
	o.rc.Log.Infof("epoch %d: %d batches, train loss %.4f, train BAC %.4f", epoch, result.Batches, result.TrainLoss, result.TrainBAC)

	if o.validLoaders != nil {
		valid, err := o.evaluate(ctx, epoch)
		if err != nil {
			return result, errors.Wrap(err, "validation")
		}
		bac := valid.BAC()
		result.ValidBAC = &bac
		result.ValidSens = valid.Sensitivity()
		result.ValidSpec = valid.Specificity()
		o.rc.Log.Infof("epoch %d: valid loss %.4f, valid BAC %.4f", epoch, valid.MeanLoss(), bac)
	}

	result.DurationMinutes = time.Since(start).Minutes()
	return result, nil
}

// evaluate predicts every batch of the validation fold without updating the model.
func (o *Orchestrator) evaluate(ctx context.Context, epoch int) (*Metrics, error) {
	loader, err := o.validLoaders(epoch)
	if err != nil {
		return nil, errors.Wrap(err, "building validation loader")
	}
	defer func() { _ = loader.Close() }()

	var metrics *Metrics
	for {
		b, err := loader.Next(ctx)
		if errors.Is(err, ErrLoaderExhausted) {
			break
		}
		if err != nil {
			return nil, err
		}
		probs, err := o.model.Predict(b)
		if err != nil {
			return nil, err
		}
		if metrics == nil {
			metrics = NewMetrics(b.LabelDim)
		}
		metrics.Add(b, probs, o.loss.Evaluate(b, probs).Value)
	}
	if metrics == nil {
		return nil, errors.Wrap(ErrLoaderExhausted, "the validation loader produced no batch")
	}
	return metrics, nil
}
