// Package pelm implements the phase-entangled associative memory: a
// fixed-capacity ring buffer of phase-tagged vectors with provenance-gated
// writes and brute-force cosine retrieval over a bounded, recency-biased
// window. Eviction is deterministic FIFO overwrite: the oldest slot wins
// when the ring is full.
package pelm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sentraotel "github.com/sentra-io/sentra/internal/otel"
	"github.com/sentra-io/sentra/internal/provenance"
	"github.com/sentra-io/sentra/internal/vecmath"
)

var tracer = sentraotel.Tracer("github.com/sentra-io/sentra/internal/pelm")

// Domain errors
var (
	ErrBadCapacity     = errors.New("capacity must be positive and at most MaxCapacity")
	ErrPhaseOutOfRange = errors.New("phase must be in [0, 1]")
	ErrBatchShape      = errors.New("batch vectors, phases, and provenances must have equal length")

	// ErrNotAdmitted signals a provenance admission rejection. This is a
	// normal, frequent outcome (low-confidence candidate below the store
	// minimum), not a bug; callers must not conflate it with validation errors.
	ErrNotAdmitted = errors.New("provenance below store confidence minimum")
)

// MaxCapacity bounds the ring so retrieval stays O(capacity*dim) with a known
// worst case.
const MaxCapacity = 1 << 20

// RejectedIndex is returned by Entangle when admission rejects the candidate.
const RejectedIndex = -1

// Record is one stored memory item. Records live by value inside the ring and
// are overwritten in place on eviction.
type Record struct {
	Vector      []float32
	Phase       float64
	Prov        provenance.Provenance
	Quarantined bool
	MemoryID    uint64
}

// Store is the ring-buffer memory. A single mutex serializes writes; reads
// run under the read lock against a stable snapshot.
type Store struct {
	mu        sync.RWMutex
	dim       int
	capacity  int
	admission provenance.AdmissionPolicy

	records []Record
	backing []float32 // one flat allocation; records alias fixed windows of it
	head    int       // next write position
	size    int
	nextID  uint64
	total   uint64 // admitted writes over the lifetime
}

// NewStore creates an empty ring of the given dimension and capacity.
func NewStore(dim, capacity int, admission provenance.AdmissionPolicy) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dim must be positive (got %d): %w", dim, vecmath.ErrEmptyVector)
	}
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("capacity %d: %w", capacity, ErrBadCapacity)
	}
	s := &Store{
		dim:       dim,
		capacity:  capacity,
		admission: admission,
		records:   make([]Record, capacity),
		backing:   make([]float32, capacity*dim),
	}
	for i := range s.records {
		s.records[i].Vector = s.backing[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return s, nil
}

// Dim returns the fixed vector dimension.
func (s *Store) Dim() int { return s.dim }

// Capacity returns the fixed ring capacity.
func (s *Store) Capacity() int { return s.capacity }

// Size returns the number of live records (at most capacity).
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// TotalAdmitted returns the number of admitted writes over the store lifetime.
func (s *Store) TotalAdmitted() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Entangle validates and admits one candidate, then writes it at the next ring
// position, overwriting the oldest record when full. Returns the ring index of
// the written record, or RejectedIndex with ErrNotAdmitted when the admission
// policy rejects the candidate (no write happens).
func (s *Store) Entangle(ctx context.Context, vector []float32, phase float64, prov provenance.Provenance) (int, error) {
	ctx, span := tracer.Start(ctx, "pelm.entangle",
		trace.WithAttributes(attribute.String("source", prov.Source.String())))
	defer span.End()

	if err := s.validateItem(vector, phase, prov); err != nil {
		return RejectedIndex, err
	}

	s.mu.Lock()
	idx, err := s.writeLocked(vector, phase, prov)
	s.mu.Unlock()

	if err != nil {
		rejectionsTotal.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("pelm.admitted", false))
		return RejectedIndex, err
	}
	entanglesTotal.Add(ctx, 1)
	span.SetAttributes(
		attribute.Bool("pelm.admitted", true),
		attribute.Int("pelm.index", idx),
	)
	return idx, nil
}

// BatchResult is the per-item outcome of EntangleBatch.
type BatchResult struct {
	Index int
	Err   error
}

// EntangleBatch applies the same validation and admission policy per item but
// acquires the write lock once for the whole batch. Batch writes dominate
// throughput under load, so the single critical section is the point.
// Input order is preserved: item i is written before item i+1.
func (s *Store) EntangleBatch(ctx context.Context, vectors [][]float32, phases []float64, provs []provenance.Provenance) ([]BatchResult, error) {
	ctx, span := tracer.Start(ctx, "pelm.entangle_batch",
		trace.WithAttributes(attribute.Int("pelm.batch_size", len(vectors))))
	defer span.End()

	if len(vectors) != len(phases) || len(vectors) != len(provs) {
		return nil, fmt.Errorf("got %d vectors, %d phases, %d provenances: %w",
			len(vectors), len(phases), len(provs), ErrBatchShape)
	}

	results := make([]BatchResult, len(vectors))
	var admitted, rejected int64

	s.mu.Lock()
	for i := range vectors {
		if err := s.validateItem(vectors[i], phases[i], provs[i]); err != nil {
			results[i] = BatchResult{Index: RejectedIndex, Err: err}
			rejected++
			continue
		}
		idx, err := s.writeLocked(vectors[i], phases[i], provs[i])
		if err != nil {
			results[i] = BatchResult{Index: RejectedIndex, Err: err}
			rejected++
			continue
		}
		results[i] = BatchResult{Index: idx}
		admitted++
	}
	s.mu.Unlock()

	if admitted > 0 {
		entanglesTotal.Add(ctx, admitted)
	}
	if rejected > 0 {
		rejectionsTotal.Add(ctx, rejected)
	}
	span.SetAttributes(attribute.Int64("pelm.batch_admitted", admitted))
	return results, nil
}

// validateItem checks vector shape, phase range, and provenance fields.
// Validation failures are typed errors distinct from admission rejection.
func (s *Store) validateItem(vector []float32, phase float64, prov provenance.Provenance) error {
	if err := vecmath.Validate(vector, s.dim); err != nil {
		return fmt.Errorf("pelm entangle: %w", err)
	}
	if phase < 0 || phase > 1 {
		return fmt.Errorf("phase %v: %w", phase, ErrPhaseOutOfRange)
	}
	if err := prov.Validate(); err != nil {
		return fmt.Errorf("pelm entangle: %w", err)
	}
	return nil
}

// writeLocked applies the admission policy and overwrites the slot at head.
// Caller holds the write lock.
func (s *Store) writeLocked(vector []float32, phase float64, prov provenance.Provenance) (int, error) {
	admitted, quarantined := s.admission.Admit(prov)
	if !admitted {
		return RejectedIndex, ErrNotAdmitted
	}

	idx := s.head
	rec := &s.records[idx]
	copy(rec.Vector, vector)
	rec.Phase = phase
	rec.Prov = prov
	rec.Quarantined = quarantined
	rec.MemoryID = s.nextID

	s.nextID++
	s.total++
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
	s.selfCheck()
	return idx, nil
}

// selfCheck validates ring bookkeeping after every mutation. A violation means
// corrupted safety state; continuing silently is worse than failing loudly.
func (s *Store) selfCheck() {
	if s.size < 0 || s.size > s.capacity || s.head < 0 || s.head >= s.capacity {
		panic(fmt.Sprintf("pelm: corrupted ring bookkeeping (head=%d size=%d capacity=%d)",
			s.head, s.size, s.capacity))
	}
}
