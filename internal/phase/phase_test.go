package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCycle_Validation(t *testing.T) {
	_, err := NewCycle(0)
	assert.ErrorIs(t, err, ErrBadPeriod)
}

func TestCycle_Phase(t *testing.T) {
	c, err := NewCycle(100 * time.Second)
	require.NoError(t, err)

	base := c.epoch
	c.now = func() time.Time { return base.Add(25 * time.Second) }
	assert.InDelta(t, 0.25, c.Phase(), 1e-9)

	c.now = func() time.Time { return base.Add(125 * time.Second) }
	assert.InDelta(t, 0.25, c.Phase(), 1e-9, "phase wraps at the period")

	c.now = func() time.Time { return base }
	assert.Zero(t, c.Phase())
}

func TestWindow_Accepts(t *testing.T) {
	w := Window{Tolerance: 0.1}
	assert.True(t, w.Accepts(0.5, 0.55))
	assert.True(t, w.Accepts(0.5, 0.4))
	assert.False(t, w.Accepts(0.5, 0.65))

	wide := Window{Tolerance: 1}
	assert.True(t, wide.Accepts(0, 1))
}

func TestFixed(t *testing.T) {
	f := NewFixed(0.5)
	assert.Equal(t, 0.5, f.Phase())
	f.Set(0.9)
	assert.Equal(t, 0.9, f.Phase())
}
