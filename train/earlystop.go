package train

import "math"

// EarlyStopper tracks a monitored metric (higher is better) and signals a stop
// after Patience consecutive epochs without improvement. Patience -1 disables it.
type EarlyStopper struct {
	Patience int

	best      float64
	bestEpoch int
	stale     int
}

// NewEarlyStopper creates a stopper with the given patience.
func NewEarlyStopper(patience int) *EarlyStopper {
	return &EarlyStopper{Patience: patience, best: math.Inf(-1), bestEpoch: -1}
}

// Enabled reports whether early stopping is active.
func (es *EarlyStopper) Enabled() bool {
	return es.Patience > 0
}

// Observe records the metric of epoch and reports whether it improved on the
// best so far. NaN never improves.
func (es *EarlyStopper) Observe(epoch int, metric float64) (improved bool) {
	if !math.IsNaN(metric) && metric > es.best {
		es.best = metric
		es.bestEpoch = epoch
		es.stale = 0
		return true
	}
	es.stale++
	return false
}

// ShouldStop reports whether patience is used up.
func (es *EarlyStopper) ShouldStop() bool {
	return es.Enabled() && es.stale >= es.Patience
}

// Best returns the best metric and its epoch (-1 before any improvement).
func (es *EarlyStopper) Best() (float64, int) {
	return es.best, es.bestEpoch
}
