package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	for _, s := range []State{StateOK, StateWarn, StateDegraded, StateHalt} {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("meltdown")
	assert.Error(t, err)
}

func TestRestore_Monotonic(t *testing.T) {
	m, err := NewMonitor(Budget{
		MaxDrift:     0.2,
		WarnAt:       0.05,
		DegradedAt:   0.1,
		MinThreshold: 0.1,
		MaxThreshold: 0.9,
	}, 0.5)
	require.NoError(t, err)

	m.Restore(StateDegraded)
	assert.Equal(t, StateDegraded, m.State())

	// Restoring a lower state never de-escalates.
	m.Restore(StateOK)
	assert.Equal(t, StateDegraded, m.State())
}

func TestRestore_HaltLatches(t *testing.T) {
	m, err := NewMonitor(Budget{
		MaxDrift:     0.2,
		WarnAt:       0.05,
		DegradedAt:   0.1,
		MinThreshold: 0.1,
		MaxThreshold: 0.9,
	}, 0.5)
	require.NoError(t, err)

	m.Restore(StateHalt)
	assert.True(t, m.Halted())

	dec := m.Evaluate(0.5, 0.5)
	assert.Equal(t, ActionClamp, dec.Action)
}
