package train

import (
	"fmt"
	"math"
)

// probEpsilon bounds predicted probabilities away from 0 and 1 before the log.
const probEpsilon = 1e-7

// LossResult is the outcome of evaluating a loss on one batch.
type LossResult struct {
	Value float64
	// Grad is the gradient with respect to the softmax logits, laid out like the
	// probabilities: [position][class].
	Grad     []float64
	Unmasked int
}

// Loss scores predicted class distributions against a batch's labels.
type Loss interface {
	Evaluate(b *BatchWindow, probs []float64) LossResult
}

// MaskedWeightedLoss is a class-weighted cross-entropy that ignores positions
// whose true label equals Mask. The value is the mean over unmasked positions,
// so gradient magnitude does not depend on mask density.
type MaskedWeightedLoss struct {
	Weights LossWeights
	Mask    int32
	Classes int
}

// NewMaskedWeightedLoss builds the loss with MaskValue and LabelClasses.
func NewMaskedWeightedLoss(weights LossWeights) *MaskedWeightedLoss {
	return &MaskedWeightedLoss{Weights: weights, Mask: MaskValue, Classes: LabelClasses}
}

// Evaluate computes the loss. probs holds Classes probabilities per label
// position of b. A batch without unmasked positions yields 0 and a zero gradient.
// A class without a weight for its scene is weighted 1. Evaluate panics when
// probs does not hold exactly Classes values per position.
func (l *MaskedWeightedLoss) Evaluate(b *BatchWindow, probs []float64) LossResult {
	k := l.Classes
	positions := b.Positions()
	res := LossResult{Grad: make([]float64, positions*k)}
	if len(probs) != positions*k {
		panic(fmt.Sprintf("loss: %d probabilities for %d label positions of %d classes", len(probs), positions, k))
	}

	weights := make([]float64, positions)
	for pos := 0; pos < positions; pos++ {
		label := b.Labels[pos]
		if label == l.Mask || label < 0 || int(label) >= k {
			continue
		}
		w, ok := l.Weights.Weight(b.PositionScene(pos), label)
		if !ok {
			w = 1
		}
		weights[pos] = w
		res.Unmasked++
	}
	if res.Unmasked == 0 {
		return res
	}

	n := float64(res.Unmasked)
	sum := 0.0
	for pos := 0; pos < positions; pos++ {
		w := weights[pos]
		if w == 0 {
			continue
		}
		label := int(b.Labels[pos])
		p := probs[pos*k : (pos+1)*k]
		sum += w * -math.Log(clip(p[label]))
		g := res.Grad[pos*k : (pos+1)*k]
		for c := 0; c < k; c++ {
			target := 0.0
			if c == label {
				target = 1
			}
			g[c] = w * (p[c] - target) / n
		}
	}
	res.Value = sum / n
	return res
}

func clip(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}
