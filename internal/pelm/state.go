package pelm

import (
	"errors"
	"fmt"

	"github.com/sentra-io/sentra/internal/provenance"
)

// ErrStateShape is returned when a restored ring state does not match the
// store's dimension or capacity.
var ErrStateShape = errors.New("ring state does not match store shape")

// RingState is a deep copy of the ring's contents for persistence. Records
// appear in slot order; Head, Size, NextID, and Total carry the bookkeeping
// needed to resume FIFO overwrite exactly where it left off.
type RingState struct {
	Dim      int      `json:"dim"`
	Capacity int      `json:"capacity"`
	Head     int      `json:"head"`
	Size     int      `json:"size"`
	NextID   uint64   `json:"next_id"`
	Total    uint64   `json:"total"`
	Records  []Record `json:"records"`
}

// Export returns a deep copy of the live ring contents.
func (s *Store) Export() RingState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, s.size)
	for i := 0; i < s.size; i++ {
		rec := s.records[i]
		rec.Vector = append([]float32(nil), rec.Vector...)
		records[i] = rec
	}
	return RingState{
		Dim:      s.dim,
		Capacity: s.capacity,
		Head:     s.head,
		Size:     s.size,
		NextID:   s.nextID,
		Total:    s.total,
		Records:  records,
	}
}

// Restore replaces the ring contents with a previously exported state. The
// state must come from a store of the same dimension and capacity; restoring
// into a differently shaped ring would silently corrupt eviction order.
func (s *Store) Restore(state RingState) error {
	if state.Dim != s.dim || state.Capacity != s.capacity {
		return fmt.Errorf("state dim=%d capacity=%d, store dim=%d capacity=%d: %w",
			state.Dim, state.Capacity, s.dim, s.capacity, ErrStateShape)
	}
	if state.Size < 0 || state.Size > s.capacity || len(state.Records) != state.Size {
		return fmt.Errorf("state size=%d with %d records: %w", state.Size, len(state.Records), ErrStateShape)
	}
	if state.Head < 0 || state.Head >= s.capacity {
		return fmt.Errorf("state head=%d: %w", state.Head, ErrStateShape)
	}
	for i := range state.Records {
		if len(state.Records[i].Vector) != s.dim {
			return fmt.Errorf("record %d has %d components: %w", i, len(state.Records[i].Vector), ErrStateShape)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		rec := &s.records[i]
		if i < state.Size {
			src := state.Records[i]
			copy(rec.Vector, src.Vector)
			rec.Phase = src.Phase
			rec.Prov = src.Prov
			rec.Quarantined = src.Quarantined
			rec.MemoryID = src.MemoryID
		} else {
			for j := range rec.Vector {
				rec.Vector[j] = 0
			}
			rec.Phase = 0
			rec.Prov = provenance.Provenance{}
			rec.Quarantined = false
			rec.MemoryID = 0
		}
	}
	s.head = state.Head
	s.size = state.Size
	s.nextID = state.NextID
	s.total = state.Total
	s.selfCheck()
	return nil
}
