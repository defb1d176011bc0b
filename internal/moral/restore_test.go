package moral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/drift"
)

func restoreTestFilter(t *testing.T) *Filter {
	t.Helper()
	cfg := DefaultConfig()
	monitor, err := drift.NewMonitor(drift.Budget{
		MaxDrift:     0.2,
		WarnAt:       0.05,
		DegradedAt:   0.1,
		MinThreshold: cfg.MinThreshold,
		MaxThreshold: cfg.MaxThreshold,
	}, cfg.InitialThreshold)
	require.NoError(t, err)
	f, err := NewFilter(cfg, monitor)
	require.NoError(t, err)
	return f
}

func TestRestore_RoundTrip(t *testing.T) {
	f := restoreTestFilter(t)
	f.Restore(ThresholdState{Threshold: 0.62, EMAAcceptRate: 0.7})

	st := f.State()
	assert.Equal(t, 0.62, st.Threshold)
	assert.Equal(t, 0.7, st.EMAAcceptRate)
	assert.False(t, st.DriftLockdown)
}

func TestRestore_ClampsThreshold(t *testing.T) {
	f := restoreTestFilter(t)
	f.Restore(ThresholdState{Threshold: 5, EMAAcceptRate: 0.5})
	assert.Equal(t, DefaultConfig().MaxThreshold, f.State().Threshold)
}

func TestRestore_LockdownStaysLatched(t *testing.T) {
	f := restoreTestFilter(t)
	f.Restore(ThresholdState{Threshold: 0.5, EMAAcceptRate: 0.9, DriftLockdown: true})

	for i := 0; i < 50; i++ {
		f.Adapt(true)
	}
	st := f.State()
	assert.True(t, st.DriftLockdown)
	assert.Equal(t, 0.5, st.Threshold)
	assert.Equal(t, 0.9, st.EMAAcceptRate, "lockdown freezes the EMA")
}
