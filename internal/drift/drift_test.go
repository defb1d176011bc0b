package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBudget() Budget {
	return Budget{
		MaxDrift:     0.10,
		WarnAt:       0.03,
		DegradedAt:   0.06,
		MinThreshold: 0.1,
		MaxThreshold: 0.9,
	}
}

func TestBudget_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Budget)
		ok     bool
	}{
		{"valid", func(b *Budget) {}, true},
		{"zero max drift", func(b *Budget) { b.MaxDrift = 0 }, false},
		{"warn above degraded", func(b *Budget) { b.WarnAt = 0.07 }, false},
		{"degraded above max", func(b *Budget) { b.DegradedAt = 0.2 }, false},
		{"thresholds inverted", func(b *Budget) { b.MinThreshold = 0.95 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBudget()
			tt.mutate(&b)
			err := b.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrBadBudget)
			}
		})
	}
}

func TestEvaluate_Classification(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      State
	}{
		{"no drift", 0.50, StateOK},
		{"within warn", 0.52, StateOK},
		{"warn", 0.55, StateWarn},
		{"degraded", 0.57, StateDegraded},
		{"halt", 0.65, StateHalt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMonitor(testBudget(), 0.50)
			require.NoError(t, err)
			dec := m.Evaluate(tt.threshold, 0.5)
			assert.Equal(t, tt.want, dec.State)
		})
	}
}

func TestEvaluate_MonotonicState(t *testing.T) {
	m, err := NewMonitor(testBudget(), 0.50)
	require.NoError(t, err)

	dec := m.Evaluate(0.57, 0.5)
	assert.Equal(t, StateDegraded, dec.State)

	// A calm reading does not de-escalate.
	dec = m.Evaluate(0.50, 0.5)
	assert.Equal(t, StateDegraded, dec.State)
	assert.Zero(t, dec.Drift)

	// Random walk through many calm evaluations: state never decreases.
	prev := dec.State
	for i := 0; i < 100; i++ {
		dec = m.Evaluate(0.51, 0.5)
		assert.GreaterOrEqual(t, int(dec.State), int(prev))
		prev = dec.State
	}
}

func TestEvaluate_HaltLatchesForever(t *testing.T) {
	m, err := NewMonitor(testBudget(), 0.50)
	require.NoError(t, err)

	dec := m.Evaluate(0.70, 0.5)
	assert.Equal(t, StateHalt, dec.State)
	assert.Equal(t, ActionClamp, dec.Action)
	assert.Equal(t, 0.50, dec.ClampedThreshold)
	assert.True(t, m.Halted())

	// Subsequent calls, however calm, keep clamping.
	for i := 0; i < 50; i++ {
		dec = m.Evaluate(0.50, 0.5)
		assert.Equal(t, StateHalt, dec.State)
		assert.Equal(t, ActionClamp, dec.Action)
	}
}

func TestEvaluate_ClampedBaselineOutsideBounds(t *testing.T) {
	b := testBudget()
	m, err := NewMonitor(b, 0.05) // baseline below MinThreshold
	require.NoError(t, err)

	dec := m.Evaluate(0.30, 0.5)
	assert.Equal(t, StateHalt, dec.State)
	assert.Equal(t, b.MinThreshold, dec.ClampedThreshold)
}

func TestEvaluate_Ratio(t *testing.T) {
	m, err := NewMonitor(testBudget(), 0.50)
	require.NoError(t, err)

	dec := m.Evaluate(0.55, 0.5)
	assert.InDelta(t, 0.5, dec.Ratio, 1e-9)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ok", StateOK.String())
	assert.Equal(t, "warn", StateWarn.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "halt", StateHalt.String())
}
