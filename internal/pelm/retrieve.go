package pelm

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentra-io/sentra/internal/vecmath"
)

// DefaultTolerance is the phase window used when Options.Tolerance is zero.
const DefaultTolerance = 0.1

// Options tune retrieval filtering. The zero value gives default tolerance,
// phase-window matching, and quarantine exclusion.
type Options struct {
	Tolerance          float64 // phase distance window; 0 means DefaultTolerance
	ExactPhase         bool    // require exact phase equality instead of a window
	IncludeQuarantined bool
	MinConfidence      float64
}

// Retrieve scores the query against every live slot by cosine similarity,
// filters by phase window and quarantine/confidence, and returns the top-k.
// Ties are broken by lower MemoryID (insertion order) for determinism.
// An empty memory or no matches yields an empty result, never an error.
func (s *Store) Retrieve(ctx context.Context, query []float32, currentPhase float64, topK int, opts Options) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "pelm.retrieve",
		trace.WithAttributes(
			attribute.Int("pelm.top_k", topK),
			attribute.Bool("pelm.include_quarantined", opts.IncludeQuarantined),
		))
	defer span.End()

	if err := vecmath.Validate(query, s.dim); err != nil {
		return nil, fmt.Errorf("pelm retrieve: %w", err)
	}
	if currentPhase < 0 || currentPhase > 1 {
		return nil, fmt.Errorf("phase %v: %w", currentPhase, ErrPhaseOutOfRange)
	}
	if topK <= 0 {
		return nil, nil
	}
	tolerance := opts.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	type scored struct {
		rec Record
		sim float64
	}

	s.mu.RLock()
	matches := make([]scored, 0, s.size)
	for i := 0; i < s.size; i++ {
		rec := &s.records[i]
		if opts.ExactPhase {
			if rec.Phase != currentPhase {
				continue
			}
		} else if math.Abs(rec.Phase-currentPhase) > tolerance {
			continue
		}
		if rec.Quarantined && !opts.IncludeQuarantined {
			continue
		}
		if rec.Prov.Confidence < opts.MinConfidence {
			continue
		}
		matches = append(matches, scored{
			rec: copyRecord(rec),
			sim: vecmath.Cosine(query, rec.Vector),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].sim != matches[j].sim {
			return matches[i].sim > matches[j].sim
		}
		return matches[i].rec.MemoryID < matches[j].rec.MemoryID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]Record, len(matches))
	for i := range matches {
		out[i] = matches[i].rec
	}

	retrievalsTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Int("pelm.returned", len(out)))
	return out, nil
}

// copyRecord clones a record so callers never alias the live ring.
func copyRecord(rec *Record) Record {
	out := *rec
	out.Vector = make([]float32, len(rec.Vector))
	copy(out.Vector, rec.Vector)
	return out
}
