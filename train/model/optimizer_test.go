package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

func TestNewOptimizer_SelectsVariantByWeightNormSwitch(t *testing.T) {
	assert.Equal(t, "adam", NewOptimizer(true).Name())
	assert.Equal(t, "adam_weightnorm", NewOptimizer(false).Name())
}

func TestClipNorm_RescalesOnlyAboveLimit(t *testing.T) {
	// GIVEN a gradient of norm 5
	grads := []float64{3, 4}

	// WHEN clipped to 1
	clipNorm(grads, 1)

	// THEN the direction is kept and the norm is 1
	assert.InDelta(t, 1, floats.Norm(grads, 2), 1e-12)
	assert.InDelta(t, 0.6, grads[0], 1e-12)

	small := []float64{0.1, 0.1}
	clipNorm(small, 1)
	assert.Equal(t, []float64{0.1, 0.1}, small)

	// limit 0 disables clipping
	big := []float64{30, 40}
	clipNorm(big, 0)
	assert.Equal(t, []float64{30, 40}, big)
}

func TestStandard_FirstStepMovesEachParameterByLearningRate(t *testing.T) {
	// GIVEN Adam with lr 0.01 and no clipping
	opt := &Standard{}
	opt.Configure(0.01, 0)
	params := []float64{1, 1, 1}

	// WHEN one step with mixed-sign gradients is taken
	opt.Step(params, []float64{2, -0.5, 0})

	// THEN bias-corrected Adam moves every nonzero-gradient parameter by ~lr against the gradient
	assert.InDelta(t, 0.99, params[0], 1e-6)
	assert.InDelta(t, 1.01, params[1], 1e-6)
	assert.Equal(t, 1.0, params[2])
}

func TestStandard_MinimizesQuadratic(t *testing.T) {
	opt := &Standard{}
	opt.Configure(0.1, 1)
	x := []float64{5}
	for i := 0; i < 500; i++ {
		opt.Step(x, []float64{2 * (x[0] - 2)})
	}
	assert.InDelta(t, 2, x[0], 0.05)
}

func TestWeightNormalized_KeepsRowsAsScaledDirections(t *testing.T) {
	// GIVEN two weight rows of size 2 followed by one bias
	opt := &WeightNormalized{}
	opt.Configure(0.05, 0)
	opt.SetLayout(2, 2)
	params := []float64{3, 4, 1, 0, 0.5}

	// WHEN minimizing ||w - target||^2 for the rows and (b-1)^2 for the bias
	target := []float64{0, 2, -1, 1}
	for i := 0; i < 2000; i++ {
		grads := make([]float64, len(params))
		for j := range target {
			grads[j] = 2 * (params[j] - target[j])
		}
		grads[4] = 2 * (params[4] - 1)
		opt.Step(params, grads)
	}

	// THEN the rows converge to the target and the bias to 1
	for j := range target {
		assert.InDelta(t, target[j], params[j], 0.05, "weight %d", j)
	}
	assert.InDelta(t, 1, params[4], 0.05)
	assert.False(t, math.IsNaN(params[0]))
}

func TestWeightNormalized_WithoutLayoutActsAsAdam(t *testing.T) {
	wn := &WeightNormalized{}
	wn.Configure(0.01, 0)
	std := &Standard{}
	std.Configure(0.01, 0)

	a := []float64{1, 2}
	b := []float64{1, 2}
	wn.Step(a, []float64{0.3, -0.7})
	std.Step(b, []float64{0.3, -0.7})
	assert.InDeltaSlice(t, b, a, 1e-12)
}
