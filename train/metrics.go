// Tracks per-label-dimension classification metrics: sensitivity, specificity
// and balanced accuracy (BAC).

package train

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// Confusion holds binary confusion counts of one label dimension.
type Confusion struct {
	TP, TN, FP, FN int64
}

// Sensitivity is TP / (TP + FN); NaN when the dimension has no positives.
func (c Confusion) Sensitivity() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// Specificity is TN / (TN + FP); NaN when the dimension has no negatives.
func (c Confusion) Specificity() float64 {
	return ratio(c.TN, c.TN+c.FP)
}

// BAC is the mean of sensitivity and specificity over the defined terms.
func (c Confusion) BAC() float64 {
	return nanMean([]float64{c.Sensitivity(), c.Specificity()})
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// Metrics accumulates confusion counts per label dimension across batches.
// Masked and padding positions are skipped. A prediction is the argmax class.
type Metrics struct {
	Dims []Confusion
	Loss float64 // sum of batch losses
	N    int     // batches
}

// NewMetrics creates an accumulator for labelDim dimensions.
func NewMetrics(labelDim int) *Metrics {
	return &Metrics{Dims: make([]Confusion, labelDim)}
}

// Add accumulates one batch. probs has LabelClasses values per label position.
func (m *Metrics) Add(b *BatchWindow, probs []float64, loss float64) {
	m.Loss += loss
	m.N++
	k := LabelClasses
	for pos := 0; pos < b.Positions() && (pos+1)*k <= len(probs); pos++ {
		label := b.Labels[pos]
		if label == MaskValue {
			continue
		}
		predicted := int32(floats.MaxIdx(probs[pos*k : (pos+1)*k]))
		c := &m.Dims[pos%b.LabelDim]
		switch {
		case label == 1 && predicted == 1:
			c.TP++
		case label == 1:
			c.FN++
		case predicted == 1:
			c.FP++
		default:
			c.TN++
		}
	}
}

// MeanLoss returns the mean batch loss.
func (m *Metrics) MeanLoss() float64 {
	if m.N == 0 {
		return 0
	}
	return m.Loss / float64(m.N)
}

// Sensitivity returns the per-dimension sensitivities.
func (m *Metrics) Sensitivity() []float64 {
	out := make([]float64, len(m.Dims))
	for i, c := range m.Dims {
		out[i] = c.Sensitivity()
	}
	return out
}

// Specificity returns the per-dimension specificities.
func (m *Metrics) Specificity() []float64 {
	out := make([]float64, len(m.Dims))
	for i, c := range m.Dims {
		out[i] = c.Specificity()
	}
	return out
}

// BAC returns the class-averaged balanced accuracy over dimensions where it is defined.
// It is NaN when no dimension has a defined BAC.
func (m *Metrics) BAC() float64 {
	bacs := make([]float64, len(m.Dims))
	for i, c := range m.Dims {
		bacs[i] = c.BAC()
	}
	return nanMean(bacs)
}

func nanMean(values []float64) float64 {
	defined := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return math.NaN()
	}
	return floats.Sum(defined) / float64(len(defined))
}

// DurationSummary describes epoch wall-clock durations in minutes.
type DurationSummary struct {
	Total  float64 `json:"total_minutes"`
	Mean   float64 `json:"mean_minutes"`
	Median float64 `json:"median_minutes"`
	Max    float64 `json:"max_minutes"`
}

// SummarizeDurations computes the summary; zero-valued for no durations.
func SummarizeDurations(minutes []float64) DurationSummary {
	if len(minutes) == 0 {
		return DurationSummary{}
	}
	data := stats.Float64Data(minutes)
	total, _ := stats.Sum(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	maxMinutes, _ := stats.Max(data)
	return DurationSummary{Total: total, Mean: mean, Median: median, Max: maxMinutes}
}
