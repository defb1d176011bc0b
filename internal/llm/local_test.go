package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalEmbedder_Validation(t *testing.T) {
	_, err := NewLocalEmbedder(0)
	assert.Error(t, err)
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e, err := NewLocalEmbedder(16)
	require.NoError(t, err)

	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e, err := NewLocalEmbedder(32)
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "memory governance engine")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalEmbedder_CaseInsensitive(t *testing.T) {
	e, err := NewLocalEmbedder(16)
	require.NoError(t, err)

	a, err := e.Embed(context.Background(), "Hello World")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedder_EmptyInput(t *testing.T) {
	e, err := NewLocalEmbedder(16)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestLocalEmbedder_DistinctTexts(t *testing.T) {
	e, err := NewLocalEmbedder(64)
	require.NoError(t, err)

	a, err := e.Embed(context.Background(), "apples and oranges")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "network packet drops")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
