package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/provenance"
)

func testEngine(t *testing.T, cfg AdmissionConfig) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), cfg)
	require.NoError(t, err)
	return e
}

func testProv(t *testing.T, source provenance.Source, confidence float64) provenance.Provenance {
	t.Helper()
	p, err := provenance.New(source, confidence, "test content", time.Now())
	require.NoError(t, err)
	return p
}

func TestEvaluateWrite_Allowed(t *testing.T) {
	e := testEngine(t, AdmissionConfig{MinTrustTier: 40, StoreMinConfidence: 0.2})

	d, err := e.EvaluateWrite(context.Background(), testProv(t, provenance.SourceUserInput, 0.9))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reasons)
}

func TestEvaluateWrite_DeniedBelowTrustTier(t *testing.T) {
	// llm_generation carries tier 30; a floor of 60 denies it.
	e := testEngine(t, AdmissionConfig{MinTrustTier: 60})

	d, err := e.EvaluateWrite(context.Background(), testProv(t, provenance.SourceLlmGeneration, 0.9))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "trust tier")
}

func TestEvaluateWrite_DeniedBelowConfidence(t *testing.T) {
	e := testEngine(t, AdmissionConfig{StoreMinConfidence: 0.5})

	d, err := e.EvaluateWrite(context.Background(), testProv(t, provenance.SourceUserInput, 0.3))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "confidence")
}

func TestEvaluateWrite_CollectsAllReasons(t *testing.T) {
	e := testEngine(t, AdmissionConfig{MinTrustTier: 95, StoreMinConfidence: 0.5})

	d, err := e.EvaluateWrite(context.Background(), testProv(t, provenance.SourceToolOutput, 0.1))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Len(t, d.Reasons, 2)
}

func TestEvaluateWrite_ZeroConfigAllowsEverything(t *testing.T) {
	e := testEngine(t, AdmissionConfig{})

	d, err := e.EvaluateWrite(context.Background(), testProv(t, provenance.SourceLlmGeneration, 0.01))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
