package train

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lossBatch(labels []int32, scene int) *BatchWindow {
	b := NewBatchWindow(1, len(labels), 1, 1)
	copy(b.Labels, labels)
	b.SceneIDs[0] = scene
	return b
}

func TestMaskedWeightedLoss_FullyMaskedBatchIsZero(t *testing.T) {
	// GIVEN a batch whose labels are all MASK
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, map[int]map[int32]float64{1: {0: 1.25, 1: 5}}))
	b := lossBatch([]int32{MaskValue, MaskValue, MaskValue}, 1)

	// WHEN evaluated on arbitrary predictions
	res := loss.Evaluate(b, []float64{0.9, 0.1, 0.2, 0.8, 0.5, 0.5})

	// THEN the value is 0 and the gradient is zero everywhere
	assert.Zero(t, res.Value)
	assert.Zero(t, res.Unmasked)
	for _, g := range res.Grad {
		assert.Zero(t, g)
	}
}

func TestMaskedWeightedLoss_WeightedMeanOverUnmasked(t *testing.T) {
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, map[int]map[int32]float64{1: {0: 1.25, 1: 5}}))
	b := lossBatch([]int32{0, MaskValue, 1}, 1)
	probs := []float64{0.8, 0.2, 0.5, 0.5, 0.4, 0.6}

	res := loss.Evaluate(b, probs)

	want := (1.25*-math.Log(0.8) + 5*-math.Log(0.6)) / 2
	assert.InDelta(t, want, res.Value, 1e-12)
	assert.Equal(t, 2, res.Unmasked)
	// gradient w*(p-onehot)/N
	assert.InDelta(t, 1.25*(0.8-1)/2, res.Grad[0], 1e-12)
	assert.InDelta(t, 1.25*0.2/2, res.Grad[1], 1e-12)
	assert.Zero(t, res.Grad[2])
	assert.Zero(t, res.Grad[3])
	assert.InDelta(t, 5*0.4/2, res.Grad[4], 1e-12)
	assert.InDelta(t, 5*(0.6-1)/2, res.Grad[5], 1e-12)
}

func TestMaskedWeightedLoss_MaskedPositionsDoNotChangeValue(t *testing.T) {
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, map[int]map[int32]float64{1: {0: 2, 1: 2}}))
	dense := loss.Evaluate(lossBatch([]int32{0, 1}, 1), []float64{0.7, 0.3, 0.1, 0.9})
	sparse := loss.Evaluate(lossBatch([]int32{0, MaskValue, MaskValue, 1}, 1),
		[]float64{0.7, 0.3, 0.01, 0.99, 0.5, 0.5, 0.1, 0.9})
	assert.InDelta(t, dense.Value, sparse.Value, 1e-12)
}

func TestMaskedWeightedLoss_MissingWeightFallsBackToOne(t *testing.T) {
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, nil))
	res := loss.Evaluate(lossBatch([]int32{1}, 9), []float64{0.5, 0.5})
	assert.InDelta(t, math.Log(2), res.Value, 1e-12)
}

func TestMaskedWeightedLoss_ClipsZeroProbability(t *testing.T) {
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, nil))
	res := loss.Evaluate(lossBatch([]int32{0}, 1), []float64{0, 1})
	assert.False(t, math.IsInf(res.Value, 0))
	assert.InDelta(t, -math.Log(probEpsilon), res.Value, 1e-9)
}

func TestMaskedWeightedLoss_PanicsOnMismatchedPredictions(t *testing.T) {
	// GIVEN a batch of three label positions
	loss := NewMaskedWeightedLoss(NewLossWeights(LabelModeInstant, nil))
	b := lossBatch([]int32{0, 1, 0}, 1)

	// THEN predictions for only two of them are rejected instead of scoring a prefix
	assert.Panics(t, func() { loss.Evaluate(b, []float64{0.5, 0.5, 0.5, 0.5}) })
	assert.Panics(t, func() { loss.Evaluate(b, make([]float64, 8)) })
}
