package train

import (
	"fmt"
	"math/rand"
)

// SelectionPolicy chooses which eligible pool entry feeds the next batch row.
// eligible is never empty; the returned value must be one of its elements.
type SelectionPolicy interface {
	Select(eligible []int) int
	Name() string
}

// NewSelectionPolicy creates a selection policy by name. "" selects random.
// rng is required for the random policy.
func NewSelectionPolicy(name string, rng *rand.Rand) (SelectionPolicy, error) {
	switch name {
	case "", SelectionRandom:
		if rng == nil {
			return nil, fmt.Errorf("random selection requires an RNG")
		}
		return &RandomSelection{rng: rng, last: -1}, nil
	case SelectionRoundRobin:
		return &RoundRobinSelection{last: -1}, nil
	}
	return nil, fmt.Errorf("unknown selection policy %q", name)
}

// RandomSelection picks uniformly among eligible entries, avoiding the entry
// picked last whenever another one is eligible. Uniform choice over every
// eligible slot gives low-index entries the same chance as the rest.
type RandomSelection struct {
	rng  *rand.Rand
	last int
}

// Select implements SelectionPolicy.
func (r *RandomSelection) Select(eligible []int) int {
	if len(eligible) == 1 {
		r.last = eligible[0]
		return r.last
	}
	for {
		pick := eligible[r.rng.Intn(len(eligible))]
		if pick != r.last {
			r.last = pick
			return pick
		}
	}
}

// Name implements SelectionPolicy.
func (r *RandomSelection) Name() string { return SelectionRandom }

// RoundRobinSelection cycles through pool slots in ascending order, starting
// after the slot picked last.
type RoundRobinSelection struct {
	last int
}

// Select implements SelectionPolicy. eligible is ascending.
func (r *RoundRobinSelection) Select(eligible []int) int {
	for _, slot := range eligible {
		if slot > r.last {
			r.last = slot
			return slot
		}
	}
	r.last = eligible[0]
	return r.last
}

// Name implements SelectionPolicy.
func (r *RoundRobinSelection) Name() string { return SelectionRoundRobin }
