package provenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Valid(t *testing.T) {
	now := time.Now()
	p, err := New(SourceUserInput, 0.9, "user said the fiscal year starts April", now)
	require.NoError(t, err)
	assert.Equal(t, SourceUserInput, p.Source)
	assert.Equal(t, 90, p.TrustTier)
	assert.Len(t, p.ContentHash, 64)
	assert.Equal(t, now.UTC(), p.Timestamp)
}

func TestNew_Invalid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		source     Source
		confidence float64
		ts         time.Time
		wantErr    error
	}{
		{"unknown source", Source(42), 0.5, now, ErrUnknownSource},
		{"negative source", Source(-1), 0.5, now, ErrUnknownSource},
		{"confidence below zero", SourceUserInput, -0.1, now, ErrConfidenceRange},
		{"confidence above one", SourceUserInput, 1.1, now, ErrConfidenceRange},
		{"zero timestamp", SourceUserInput, 0.5, time.Time{}, ErrZeroTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.source, tt.confidence, "content", tt.ts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseSource_RoundTrip(t *testing.T) {
	for _, s := range []Source{SourceUserInput, SourceSystemPrompt, SourceLlmGeneration, SourceToolOutput, SourceOperator} {
		parsed, err := ParseSource(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseSource("carrier_pigeon")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestDeriveTrustTier(t *testing.T) {
	assert.Equal(t, 100, DeriveTrustTier(SourceOperator))
	assert.Equal(t, 30, DeriveTrustTier(SourceLlmGeneration))
	assert.Equal(t, 0, DeriveTrustTier(Source(99)))
}

func TestAdmit_RejectsBelowStoreMin(t *testing.T) {
	ap := DefaultAdmissionPolicy()
	ap.StoreMinConfidence = 0.4

	p, err := New(SourceUserInput, 0.3, "low confidence", time.Now())
	require.NoError(t, err)

	admitted, quarantined := ap.Admit(p)
	assert.False(t, admitted)
	assert.False(t, quarantined)
}

func TestAdmit_QuarantinesLlmGeneration(t *testing.T) {
	ap := DefaultAdmissionPolicy()

	p, err := New(SourceLlmGeneration, 0.95, "model output", time.Now())
	require.NoError(t, err)

	admitted, quarantined := ap.Admit(p)
	assert.True(t, admitted)
	assert.True(t, quarantined, "llm_generation is quarantined regardless of confidence")
}

func TestAdmit_QuarantinesLowConfidence(t *testing.T) {
	ap := DefaultAdmissionPolicy()

	p, err := New(SourceUserInput, 0.3, "uncertain claim", time.Now())
	require.NoError(t, err)

	admitted, quarantined := ap.Admit(p)
	assert.True(t, admitted)
	assert.True(t, quarantined)
}

func TestAdmit_TrustedHighConfidence(t *testing.T) {
	ap := DefaultAdmissionPolicy()

	p, err := New(SourceOperator, 0.99, "operator note", time.Now())
	require.NoError(t, err)

	admitted, quarantined := ap.Admit(p)
	assert.True(t, admitted)
	assert.False(t, quarantined)
}

func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent("same content")
	b := HashContent("same content")
	c := HashContent("other content")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
