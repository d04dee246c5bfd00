package train

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ClassCounts counts unmasked label occurrences per class.
type ClassCounts map[int32]int64

// Total returns the number of counted labels.
func (c ClassCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// Add accumulates other into c.
func (c ClassCounts) Add(other ClassCounts) {
	for class, n := range other {
		c[class] += n
	}
}

// CountLabels counts the unmasked values of labels.
func CountLabels(labels []int32) ClassCounts {
	counts := make(ClassCounts)
	for _, l := range labels {
		if l == MaskValue {
			continue
		}
		counts[l]++
	}
	return counts
}

// LabelCounter returns the class counts of one scene file under a label mode.
type LabelCounter interface {
	CountLabels(f SceneFile, mode LabelMode) (ClassCounts, error)
}

// ScanCounter counts labels by reading every scene file through Reader.
type ScanCounter struct {
	Reader SceneReader
}

// CountLabels implements LabelCounter.
func (sc ScanCounter) CountLabels(f SceneFile, mode LabelMode) (ClassCounts, error) {
	scene, err := sc.Reader.ReadScene(f)
	if err != nil {
		return nil, errors.Wrapf(err, "counting labels of %s", f.Path)
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	return CountLabels(InterpretLabels(scene.Labels, scene.LabelDim, mode)), nil
}

// LossWeights maps (scene id, class) to an inverse-frequency weight.
// Weights are strictly positive and finite; MaskValue never has a weight.
// Immutable after ComputeLossWeights returns it.
type LossWeights struct {
	Mode    LabelMode
	weights map[int]map[int32]float64
}

// NewLossWeights builds LossWeights from explicit per-scene class weights.
// Non-positive, non-finite and MaskValue entries are dropped.
func NewLossWeights(mode LabelMode, perScene map[int]map[int32]float64) LossWeights {
	lw := LossWeights{Mode: mode, weights: make(map[int]map[int32]float64, len(perScene))}
	for scene, classes := range perScene {
		m := make(map[int32]float64, len(classes))
		for class, w := range classes {
			if class == MaskValue || w <= 0 || math.IsInf(w, 0) || math.IsNaN(w) {
				continue
			}
			m[class] = w
		}
		lw.weights[scene] = m
	}
	return lw
}

// Weight returns the weight of class in scene; ok is false when it is undefined.
func (lw LossWeights) Weight(scene int, class int32) (w float64, ok bool) {
	classes, found := lw.weights[scene]
	if !found {
		return 0, false
	}
	w, ok = classes[class]
	return w, ok
}

// Scenes returns the scene ids that carry weights, ascending.
func (lw LossWeights) Scenes() []int {
	ids := make([]int, 0, len(lw.weights))
	for id := range lw.weights {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Classes returns a copy of the weights of one scene.
func (lw LossWeights) Classes(scene int) map[int32]float64 {
	out := make(map[int32]float64, len(lw.weights[scene]))
	for c, w := range lw.weights[scene] {
		out[c] = w
	}
	return out
}

func (lw LossWeights) String() string {
	var sb strings.Builder
	sb.WriteString(string(lw.Mode))
	sb.WriteString("{")
	for i, scene := range lw.Scenes() {
		if i > 0 {
			sb.WriteString(" ")
		}
		classes := lw.weights[scene]
		keys := make([]int, 0, len(classes))
		for c := range classes {
			keys = append(keys, int(c))
		}
		sort.Ints(keys)
		sb.WriteString(fmt.Sprintf("%d:[", scene))
		for j, c := range keys {
			if j > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(fmt.Sprintf("%d=%.4g", c, classes[int32(c)]))
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
	return sb.String()
}

// ComputeLossWeights computes, for every scene in files, weight = 1 / frequency
// of each class among the unmasked labels of that scene under mode. Files are
// scanned in path order so the result is deterministic. It fails with
// ErrEmptyScope when files is empty or contains no labeled samples.
func ComputeLossWeights(counter LabelCounter, files []SceneFile, mode LabelMode) (LossWeights, error) {
	if len(files) == 0 {
		return LossWeights{}, errors.Wrap(ErrEmptyScope, "no scene files in the weighting scope")
	}
	ordered := append([]SceneFile(nil), files...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	perScene := make(map[int]ClassCounts)
	var total int64
	for _, f := range ordered {
		counts, err := counter.CountLabels(f, mode)
		if err != nil {
			return LossWeights{}, err
		}
		if perScene[f.Scene] == nil {
			perScene[f.Scene] = make(ClassCounts)
		}
		perScene[f.Scene].Add(counts)
		total += counts.Total()
	}
	if total == 0 {
		return LossWeights{}, errors.Wrapf(ErrEmptyScope, "%d scene files hold no labeled samples in %s mode", len(files), mode)
	}

	weights := make(map[int]map[int32]float64, len(perScene))
	for scene, counts := range perScene {
		n := counts.Total()
		if n == 0 {
			continue
		}
		classes := make(map[int32]float64, len(counts))
		for class, c := range counts {
			if c == 0 {
				continue
			}
			classes[class] = float64(n) / float64(c)
		}
		weights[scene] = classes
	}
	return NewLossWeights(mode, weights), nil
}
