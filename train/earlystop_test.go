package train

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarlyStopper_StopsAfterPatienceStaleEpochs(t *testing.T) {
	es := NewEarlyStopper(2)
	assert.True(t, es.Observe(1, 0.6))
	assert.True(t, es.Observe(2, 0.7))
	assert.False(t, es.Observe(3, 0.7))
	assert.False(t, es.ShouldStop())
	assert.False(t, es.Observe(4, 0.65))
	assert.True(t, es.ShouldStop())

	best, epoch := es.Best()
	assert.Equal(t, 0.7, best)
	assert.Equal(t, 2, epoch)
}

func TestEarlyStopper_ImprovementResetsPatience(t *testing.T) {
	es := NewEarlyStopper(2)
	es.Observe(1, 0.5)
	es.Observe(2, 0.4)
	es.Observe(3, 0.55)
	es.Observe(4, 0.5)
	assert.False(t, es.ShouldStop())
}

func TestEarlyStopper_NaNNeverImproves(t *testing.T) {
	es := NewEarlyStopper(1)
	assert.False(t, es.Observe(1, math.NaN()))
	assert.True(t, es.ShouldStop())
	_, epoch := es.Best()
	assert.Equal(t, -1, epoch)
}

func TestEarlyStopper_DisabledNeverStops(t *testing.T) {
	es := NewEarlyStopper(-1)
	for epoch := 1; epoch <= 20; epoch++ {
		es.Observe(epoch, 0.1)
	}
	assert.False(t, es.Enabled())
	assert.False(t, es.ShouldStop())
}
