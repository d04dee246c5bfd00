package model

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/twoears/scenetcn/train"
)

// Framewise classifies every frame on its own: one softmax layer over
// LabelClasses per label dimension, fed by the standardized feature vector
// of the frame. Weights are laid out [labelDim][class][featureDim] followed
// by the biases [labelDim][class].
type Framewise struct {
	arch       Architecture
	featureDim int
	labelDim   int
	classes    int
	dropout    float64

	params []float64
	grads  []float64

	opt  train.Optimizer
	loss train.Loss
	rng  *rand.Rand
}

// NewFramewise initializes the weights with Glorot-uniform values drawn from rng.
func NewFramewise(p train.RunParams, rng *rand.Rand) (*Framewise, error) {
	if p.DimFeatures <= 0 || p.DimLabels <= 0 {
		return nil, errors.Errorf("feature and label dimensions must be positive, got %d and %d", p.DimFeatures, p.DimLabels)
	}
	if rng == nil {
		return nil, errors.New("model rng is required")
	}
	m := &Framewise{
		arch:       NewArchitecture(p),
		featureDim: p.DimFeatures,
		labelDim:   p.DimLabels,
		classes:    train.LabelClasses,
		dropout:    p.DropoutRate,
		rng:        rng,
	}
	weights := m.labelDim * m.classes * m.featureDim
	m.params = make([]float64, weights+m.labelDim*m.classes)
	m.grads = make([]float64, len(m.params))
	limit := math.Sqrt(6 / float64(m.featureDim+m.classes))
	for i := 0; i < weights; i++ {
		m.params[i] = (2*rng.Float64() - 1) * limit
	}
	return m, nil
}

// Compile implements train.Model.
func (m *Framewise) Compile(opt train.Optimizer, loss train.Loss) error {
	if opt == nil || loss == nil {
		return errors.New("optimizer and loss are required")
	}
	m.opt, m.loss = opt, loss
	if la, ok := opt.(layoutAware); ok {
		la.SetLayout(m.labelDim*m.classes, m.featureDim)
	}
	return nil
}

// NumParams returns the number of trainable parameters.
func (m *Framewise) NumParams() int { return len(m.params) }

// TrainOnBatch implements train.Model. Dropout is applied to the input
// features of the forward pass.
func (m *Framewise) TrainOnBatch(b *train.BatchWindow) (train.StepResult, error) {
	if m.opt == nil {
		return train.StepResult{}, errors.New("model is not compiled")
	}
	if err := m.checkShape(b); err != nil {
		return train.StepResult{}, err
	}
	inputs := m.inputs(b, true)
	probs := m.forward(b, inputs)
	res := m.loss.Evaluate(b, probs)

	floats.Scale(0, m.grads)
	if res.Unmasked > 0 {
		m.backward(b, inputs, res.Grad)
		m.opt.Step(m.params, m.grads)
	}
	return train.StepResult{Loss: res.Value, Unmasked: res.Unmasked, Probs: probs}, nil
}

// Predict implements train.Model.
func (m *Framewise) Predict(b *train.BatchWindow) ([]float64, error) {
	if err := m.checkShape(b); err != nil {
		return nil, err
	}
	return m.forward(b, m.inputs(b, false)), nil
}

func (m *Framewise) checkShape(b *train.BatchWindow) error {
	if b.FeatureDim != m.featureDim || b.LabelDim != m.labelDim {
		return errors.Errorf("batch shape %dx%d does not match the model input %dx%d",
			b.FeatureDim, b.LabelDim, m.featureDim, m.labelDim)
	}
	return nil
}

// inputs converts the batch features to float64, zeroing and rescaling
// dropped features when training.
func (m *Framewise) inputs(b *train.BatchWindow, training bool) []float64 {
	x := make([]float64, len(b.Features))
	keep := 1 - m.dropout
	for i, v := range b.Features {
		if training && m.dropout > 0 {
			if m.rng.Float64() < m.dropout {
				continue
			}
			x[i] = float64(v) / keep
			continue
		}
		x[i] = float64(v)
	}
	return x
}

// forward returns LabelClasses probabilities per label position.
func (m *Framewise) forward(b *train.BatchWindow, x []float64) []float64 {
	k := m.classes
	frames := b.Size * b.Length
	bias := m.params[m.labelDim*k*m.featureDim:]
	probs := make([]float64, frames*m.labelDim*k)
	logits := make([]float64, k)
	for t := 0; t < frames; t++ {
		frame := x[t*m.featureDim : (t+1)*m.featureDim]
		for d := 0; d < m.labelDim; d++ {
			for c := 0; c < k; c++ {
				row := (d*k + c) * m.featureDim
				logits[c] = floats.Dot(m.params[row:row+m.featureDim], frame) + bias[d*k+c]
			}
			softmax(probs[(t*m.labelDim+d)*k:(t*m.labelDim+d+1)*k], logits)
		}
	}
	return probs
}

// backward accumulates parameter gradients from the logit gradients.
func (m *Framewise) backward(b *train.BatchWindow, x, gradLogits []float64) {
	k := m.classes
	frames := b.Size * b.Length
	biasOffset := m.labelDim * k * m.featureDim
	for t := 0; t < frames; t++ {
		frame := x[t*m.featureDim : (t+1)*m.featureDim]
		for d := 0; d < m.labelDim; d++ {
			g := gradLogits[(t*m.labelDim+d)*k : (t*m.labelDim+d+1)*k]
			for c, gc := range g {
				if gc == 0 {
					continue
				}
				row := (d*k + c) * m.featureDim
				floats.AddScaled(m.grads[row:row+m.featureDim], gc, frame)
				m.grads[biasOffset+d*k+c] += gc
			}
		}
	}
}

func softmax(dst, logits []float64) {
	maxLogit := floats.Max(logits)
	for i, l := range logits {
		dst[i] = math.Exp(l - maxLogit)
	}
	floats.Scale(1/floats.Sum(dst), dst)
}

// Summary implements train.Model.
func (m *Framewise) Summary() string {
	var sb strings.Builder
	sb.WriteString(m.arch.Summary())
	fmt.Fprintf(&sb, "\nframewise softmax classifier: %d x %d outputs over %d features, %d parameters",
		m.labelDim, m.classes, m.featureDim, len(m.params))
	if m.opt != nil {
		fmt.Fprintf(&sb, ", optimizer %s", m.opt.Name())
	}
	return sb.String()
}

// checkpoint is the gob-encoded form of a saved model.
type checkpoint struct {
	FeatureDim int
	LabelDim   int
	Classes    int
	Params     []float64
}

// Save implements train.Model.
func (m *Framewise) Save(w io.Writer) error {
	err := gob.NewEncoder(w).Encode(checkpoint{
		FeatureDim: m.featureDim,
		LabelDim:   m.labelDim,
		Classes:    m.classes,
		Params:     m.params,
	})
	return errors.Wrap(err, "encoding model checkpoint")
}

// Load restores the parameters written by Save.
func (m *Framewise) Load(r io.Reader) error {
	var cp checkpoint
	if err := gob.NewDecoder(r).Decode(&cp); err != nil {
		return errors.Wrap(err, "decoding model checkpoint")
	}
	if cp.FeatureDim != m.featureDim || cp.LabelDim != m.labelDim || cp.Classes != m.classes || len(cp.Params) != len(m.params) {
		return errors.Errorf("checkpoint shape %dx%dx%d does not match the model %dx%dx%d",
			cp.LabelDim, cp.Classes, cp.FeatureDim, m.labelDim, m.classes, m.featureDim)
	}
	copy(m.params, cp.Params)
	return nil
}
