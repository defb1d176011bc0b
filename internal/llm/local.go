package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic, dependency-free embedder: token hashes
// are projected into dim buckets and the result is L2-normalized. It carries
// no semantics beyond token overlap and exists so deployments without an
// embeddings backend still exercise the full memory pipeline.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a hash-projection embedder of the given dimension.
func NewLocalEmbedder(dim int) (*LocalEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive (got %d)", dim)
	}
	return &LocalEmbedder{dim: dim}, nil
}

// Name returns the embedder identifier.
func (e *LocalEmbedder) Name() string { return "local" }

// Dim returns the vector dimension.
func (e *LocalEmbedder) Dim() int { return e.dim }

// Embed hashes each lowercase token into a bucket with a hash-derived sign,
// then L2-normalizes. The same text always yields the same vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dim))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		out[bucket] += sign
	}

	var norm float64
	for _, x := range out {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// All tokens cancelled out; fall back to a unit vector so the
		// result is still usable for cosine retrieval.
		out[0] = 1
		return out, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range out {
		out[i] *= inv
	}
	return out, nil
}
