package train

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"
)

// Optimizer updates model parameters from gradients. The two variants are
// interchangeable and selected by RunParams.NoWeightNorm.
type Optimizer interface {
	Name() string
	// Configure sets the learning rate and the gradient clipping norm (0 disables clipping).
	Configure(learningRate, gradientClipNorm float64)
	// Step applies one update. params and grads have equal length.
	Step(params, grads []float64)
}

// Model is the trainable network. Compile attaches the optimizer and loss and
// must precede TrainOnBatch.
type Model interface {
	Compile(opt Optimizer, loss Loss) error
	// TrainOnBatch runs one forward/backward pass and optimizer step.
	TrainOnBatch(b *BatchWindow) (StepResult, error)
	// Predict returns LabelClasses probabilities per label position of b.
	Predict(b *BatchWindow) ([]float64, error)
	Summary() string
	Save(w io.Writer) error
}

// StepResult is the outcome of one training step.
type StepResult struct {
	Loss     float64
	Unmasked int
	Probs    []float64 // predictions of the forward pass, before the update
}

// NewModelFunc constructs the model for a run. Set by train/model's init().
var NewModelFunc func(p RunParams, rng *rand.Rand) (Model, error)

// NewOptimizerFunc returns the optimizer variant for the weight-norm switch.
// Set by train/model's init().
var NewOptimizerFunc func(noWeightNorm bool) Optimizer

// BuildModel constructs, configures and compiles the model of a run.
func BuildModel(p RunParams, rng *PartitionedRNG, loss Loss) (Model, Optimizer, error) {
	if NewModelFunc == nil || NewOptimizerFunc == nil {
		return nil, nil, errors.New("no model registered: import github.com/twoears/scenetcn/train/model")
	}
	m, err := NewModelFunc(p, rng.ForSubsystem(SubsystemModel))
	if err != nil {
		return nil, nil, errors.Wrap(err, "building model")
	}
	opt := NewOptimizerFunc(p.NoWeightNorm)
	if opt == nil {
		return nil, nil, errors.New("no optimizer registered for the weight normalization setting")
	}
	opt.Configure(p.LearningRate, p.GradientClip)
	if err := m.Compile(opt, loss); err != nil {
		return nil, nil, errors.Wrap(err, "compiling model")
	}
	return m, opt, nil
}
