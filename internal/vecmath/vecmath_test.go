package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       []float32
		dim     int
		wantErr error
	}{
		{"ok", []float32{1, 2, 3}, 3, nil},
		{"short", []float32{1, 2}, 3, ErrDimensionMismatch},
		{"long", []float32{1, 2, 3, 4}, 3, ErrDimensionMismatch},
		{"nan", []float32{1, float32(math.NaN()), 3}, 3, ErrNotFinite},
		{"inf", []float32{1, float32(math.Inf(1)), 3}, 3, ErrNotFinite},
		{"neg inf", []float32{float32(math.Inf(-1)), 2, 3}, 3, ErrNotFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.v, tt.dim)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-9)
	assert.Zero(t, Norm([]float32{0, 0, 0}))
	assert.Zero(t, Norm(nil))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.2, Clamp(0.1, 0.2, 0.9))
	assert.Equal(t, 0.9, Clamp(1.5, 0.2, 0.9))
	assert.Equal(t, 0.5, Clamp(0.5, 0.2, 0.9))
}
