package pelm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/provenance"
)

func TestExportRestore_RoundTrip(t *testing.T) {
	src, err := NewStore(3, 4, provenance.DefaultAdmissionPolicy())
	require.NoError(t, err)

	prov, err := provenance.New(provenance.SourceUserInput, 0.9, "content", time.Now())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		v := []float32{float32(i), 1, 0}
		_, err := src.Entangle(context.Background(), v, 0.5, prov)
		require.NoError(t, err)
	}
	state := src.Export()
	assert.Equal(t, 4, state.Size)
	assert.Equal(t, uint64(5), state.NextID)

	dst, err := NewStore(3, 4, provenance.DefaultAdmissionPolicy())
	require.NoError(t, err)
	require.NoError(t, dst.Restore(state))

	assert.Equal(t, src.Size(), dst.Size())
	assert.Equal(t, src.TotalAdmitted(), dst.TotalAdmitted())

	// The restored ring continues FIFO exactly where the source left off:
	// the next write overwrites the oldest surviving record.
	idx, err := dst.Entangle(context.Background(), []float32{9, 9, 9}, 0.5, prov)
	require.NoError(t, err)
	srcIdx, err := src.Entangle(context.Background(), []float32{9, 9, 9}, 0.5, prov)
	require.NoError(t, err)
	assert.Equal(t, srcIdx, idx)
}

func TestExport_ReturnsCopies(t *testing.T) {
	s, err := NewStore(2, 2, provenance.DefaultAdmissionPolicy())
	require.NoError(t, err)
	prov, err := provenance.New(provenance.SourceUserInput, 0.9, "content", time.Now())
	require.NoError(t, err)
	_, err = s.Entangle(context.Background(), []float32{1, 2}, 0.5, prov)
	require.NoError(t, err)

	state := s.Export()
	state.Records[0].Vector[0] = 99

	again := s.Export()
	assert.Equal(t, float32(1), again.Records[0].Vector[0])
}

func TestRestore_ShapeValidation(t *testing.T) {
	s, err := NewStore(3, 4, provenance.DefaultAdmissionPolicy())
	require.NoError(t, err)

	tests := []struct {
		name  string
		state RingState
	}{
		{"wrong dim", RingState{Dim: 2, Capacity: 4}},
		{"wrong capacity", RingState{Dim: 3, Capacity: 8}},
		{"size exceeds capacity", RingState{Dim: 3, Capacity: 4, Size: 5}},
		{"record count mismatch", RingState{Dim: 3, Capacity: 4, Size: 1}},
		{"head out of range", RingState{Dim: 3, Capacity: 4, Head: 4}},
		{
			"record dim mismatch",
			RingState{Dim: 3, Capacity: 4, Size: 1, Records: []Record{{Vector: []float32{1}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Restore(tt.state), ErrStateShape)
		})
	}
}
