package model

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/twoears/scenetcn/train"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// NewOptimizer returns Standard when noWeightNorm is set, WeightNormalized otherwise.
func NewOptimizer(noWeightNorm bool) train.Optimizer {
	if noWeightNorm {
		return &Standard{}
	}
	return &WeightNormalized{}
}

// layoutAware optimizers need to know which parameters form weight rows.
type layoutAware interface {
	SetLayout(rows, rowSize int)
}

// Standard is the Adam optimizer with optional gradient norm clipping.
type Standard struct {
	lr, clip float64
	adam     adamState
}

// Name implements train.Optimizer.
func (s *Standard) Name() string { return "adam" }

// Configure implements train.Optimizer.
func (s *Standard) Configure(learningRate, gradientClipNorm float64) {
	s.lr, s.clip = learningRate, gradientClipNorm
}

// Step implements train.Optimizer.
func (s *Standard) Step(params, grads []float64) {
	clipNorm(grads, s.clip)
	s.adam.step(params, grads, s.lr)
}

// WeightNormalized is Adam over a weight-normalized parameterization: every
// weight row w is represented as g * v / ||v|| and Adam updates g and v.
// Parameters after rows*rowSize (the biases) take plain Adam steps.
type WeightNormalized struct {
	lr, clip      float64
	rows, rowSize int

	v     []float64 // directions, rows*rowSize
	g     []float64 // scales, rows
	adamV adamState
	adamG adamState
	adamB adamState
}

// Name implements train.Optimizer.
func (w *WeightNormalized) Name() string { return "adam_weightnorm" }

// Configure implements train.Optimizer.
func (w *WeightNormalized) Configure(learningRate, gradientClipNorm float64) {
	w.lr, w.clip = learningRate, gradientClipNorm
}

// SetLayout declares the weight rows. Without a layout every parameter is a bias.
func (w *WeightNormalized) SetLayout(rows, rowSize int) {
	w.rows, w.rowSize = rows, rowSize
	w.v, w.g = nil, nil
}

// Step implements train.Optimizer.
func (w *WeightNormalized) Step(params, grads []float64) {
	clipNorm(grads, w.clip)
	n := w.rows * w.rowSize
	if n > len(params) {
		n = 0
	}
	if n > 0 {
		w.stepRows(params[:n], grads[:n])
	}
	w.adamB.step(params[n:], grads[n:], w.lr)
}

func (w *WeightNormalized) stepRows(weights, grads []float64) {
	if w.v == nil {
		w.v = append([]float64(nil), weights...)
		w.g = make([]float64, w.rows)
		for r := range w.g {
			w.g[r] = floats.Norm(w.v[r*w.rowSize:(r+1)*w.rowSize], 2)
		}
	}
	gradV := make([]float64, len(w.v))
	gradG := make([]float64, w.rows)
	for r := 0; r < w.rows; r++ {
		v := w.v[r*w.rowSize : (r+1)*w.rowSize]
		gw := grads[r*w.rowSize : (r+1)*w.rowSize]
		norm := floats.Norm(v, 2)
		if norm == 0 {
			continue
		}
		gradG[r] = floats.Dot(gw, v) / norm
		gv := gradV[r*w.rowSize : (r+1)*w.rowSize]
		for i := range gv {
			gv[i] = w.g[r] / norm * (gw[i] - gradG[r]*v[i]/norm)
		}
	}
	w.adamV.step(w.v, gradV, w.lr)
	w.adamG.step(w.g, gradG, w.lr)
	for r := 0; r < w.rows; r++ {
		v := w.v[r*w.rowSize : (r+1)*w.rowSize]
		norm := floats.Norm(v, 2)
		if norm == 0 {
			continue
		}
		out := weights[r*w.rowSize : (r+1)*w.rowSize]
		floats.ScaleTo(out, w.g[r]/norm, v)
	}
}

// adamState holds the Adam moments of one parameter group.
type adamState struct {
	m, v []float64
	t    int
}

func (a *adamState) step(params, grads []float64, lr float64) {
	if len(params) == 0 {
		return
	}
	if len(a.m) != len(params) {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
		a.t = 0
	}
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))
	for i, g := range grads {
		a.m[i] = adamBeta1*a.m[i] + (1-adamBeta1)*g
		a.v[i] = adamBeta2*a.v[i] + (1-adamBeta2)*g*g
		params[i] -= lr * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + adamEpsilon)
	}
}

// clipNorm rescales grads to an L2 norm of at most limit; limit 0 disables it.
func clipNorm(grads []float64, limit float64) {
	if limit <= 0 || len(grads) == 0 {
		return
	}
	norm := floats.Norm(grads, 2)
	if norm > limit {
		floats.Scale(limit/norm, grads)
	}
}
