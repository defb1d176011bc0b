// Package vecmath provides the small set of vector operations shared by the
// synaptic and associative memories: validation, L2 norm, and cosine similarity.
package vecmath

import (
	"errors"
	"fmt"
	"math"
)

// Domain errors
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotFinite         = errors.New("vector contains NaN or Inf")
	ErrEmptyVector       = errors.New("vector must not be empty")
)

// Validate checks that v has exactly dim finite elements. It must be called
// before any mutation so that a malformed vector never partially applies.
func Validate(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("got %d, want %d: %w", len(v), dim, ErrDimensionMismatch)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("element %d: %w", i, ErrNotFinite)
		}
	}
	return nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b. Vectors must be the same
// length; a zero vector yields similarity 0.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
