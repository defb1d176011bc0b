package synaptic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/vecmath"
)

func testMemory(t *testing.T, dim int) *Memory {
	t.Helper()
	m, err := NewMemory(DefaultConfig(dim))
	require.NoError(t, err)
	return m
}

func TestNewMemory_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dim", func(c *Config) { c.Dim = 0 }},
		{"lambda order", func(c *Config) { c.Lambda1 = 0.01 }},
		{"lambda out of range", func(c *Config) { c.Lambda1 = 1.5 }},
		{"zero theta", func(c *Config) { c.Theta1 = 0 }},
		{"bad fraction", func(c *Config) { c.TransferFraction = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(8)
			tt.mutate(&cfg)
			_, err := NewMemory(cfg)
			assert.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestUpdate_DecayThenAccumulate(t *testing.T) {
	m := testMemory(t, 2)

	require.NoError(t, m.Update([]float32{1, 0}))
	l1, l2, l3 := m.State()
	assert.InDelta(t, 1.0, float64(l1[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(l2[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(l3[0]), 1e-6)

	require.NoError(t, m.Update([]float32{1, 0}))
	l1, l2, l3 = m.State()
	// level = prev*(1-lambda) + event
	assert.InDelta(t, 1.0*0.70+1.0, float64(l1[0]), 1e-6)
	assert.InDelta(t, 1.0*0.95+1.0, float64(l2[0]), 1e-6)
	assert.InDelta(t, 1.0*0.99+1.0, float64(l3[0]), 1e-6)
}

func TestUpdate_FasterDecayOnL1(t *testing.T) {
	m := testMemory(t, 4)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Update([]float32{0.1, 0.1, 0.1, 0.1}))
	}
	l1, _, l3 := m.State()
	// L3 decays slowest, so it accumulates the most.
	assert.Greater(t, vecmath.Norm(l3), vecmath.Norm(l1))
}

func TestUpdate_Consolidation(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.Theta1 = 1.5
	m, err := NewMemory(cfg)
	require.NoError(t, err)

	// First update leaves norm(L1) == 1 (below theta); second pushes past it.
	require.NoError(t, m.Update([]float32{1, 0}))
	l1Before, l2Before, _ := m.State()
	require.InDelta(t, 1.0, vecmath.Norm(l1Before), 1e-6)

	require.NoError(t, m.Update([]float32{1, 0}))
	l1, l2, _ := m.State()

	// norm before consolidation would be 1*0.7+1 = 1.7 > theta, so half moved to L2.
	assert.InDelta(t, 1.7*0.5, float64(l1[0]), 1e-6)
	assert.InDelta(t, float64(l2Before[0])*0.95+1+1.7*0.5, float64(l2[0]), 1e-6)
}

func TestUpdate_RejectsWithoutMutation(t *testing.T) {
	m := testMemory(t, 3)
	require.NoError(t, m.Update([]float32{1, 2, 3}))
	l1Before, l2Before, l3Before := m.State()

	assert.ErrorIs(t, m.Update([]float32{1, 2}), vecmath.ErrDimensionMismatch)
	assert.ErrorIs(t, m.Update([]float32{1, float32(math.NaN()), 3}), vecmath.ErrNotFinite)

	l1, l2, l3 := m.State()
	assert.Equal(t, l1Before, l1)
	assert.Equal(t, l2Before, l2)
	assert.Equal(t, l3Before, l3)
	assert.Equal(t, uint64(1), m.Events())
}

func TestState_ReturnsCopies(t *testing.T) {
	m := testMemory(t, 2)
	require.NoError(t, m.Update([]float32{1, 1}))

	l1, _, _ := m.State()
	l1[0] = 999

	fresh, _, _ := m.State()
	assert.InDelta(t, 1.0, float64(fresh[0]), 1e-6)
}

func TestMemoryUsageBytes(t *testing.T) {
	m := testMemory(t, 100)
	// 3 levels * 100 dims * 4 bytes * 1.4 overhead
	assert.Equal(t, uint64(1680), m.MemoryUsageBytes())
}
