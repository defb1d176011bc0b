package engine

import (
	"context"
	"fmt"

	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/moral"
	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/snapshot"
)

// State is a read-only summary of the engine's working state.
type State struct {
	Dim              int                  `json:"dim"`
	Phase            float64              `json:"phase"`
	SynapticEvents   uint64               `json:"synaptic_events"`
	MemoryUsageBytes uint64               `json:"memory_usage_bytes"`
	RingSize         int                  `json:"ring_size"`
	RingCapacity     int                  `json:"ring_capacity"`
	TotalAdmitted    uint64               `json:"total_admitted"`
	Filter           moral.ThresholdState `json:"filter"`
	DriftState       string               `json:"drift_state"`
}

// State summarizes the engine without exposing any mutable internals.
func (e *Engine) State() State {
	return State{
		Dim:              e.ring.Dim(),
		Phase:            e.oracle.Phase(),
		SynapticEvents:   e.synaptic.Events(),
		MemoryUsageBytes: e.synaptic.MemoryUsageBytes(),
		RingSize:         e.ring.Size(),
		RingCapacity:     e.ring.Capacity(),
		TotalAdmitted:    e.ring.TotalAdmitted(),
		Filter:           e.filter.State(),
		DriftState:       e.monitor.State().String(),
	}
}

// View is the read-only capability handed to components that may query but
// never mutate: retrieval and state inspection only.
type View interface {
	Retrieve(ctx context.Context, query []float32, topK int, opts pelm.Options) ([]pelm.Record, error)
	RetrieveText(ctx context.Context, text string, topK int, opts pelm.Options) ([]pelm.Record, error)
	State() State
}

type readOnlyView struct {
	e *Engine
}

func (v readOnlyView) Retrieve(ctx context.Context, query []float32, topK int, opts pelm.Options) ([]pelm.Record, error) {
	return v.e.Retrieve(ctx, query, topK, opts)
}

func (v readOnlyView) RetrieveText(ctx context.Context, text string, topK int, opts pelm.Options) ([]pelm.Record, error) {
	return v.e.RetrieveText(ctx, text, topK, opts)
}

func (v readOnlyView) State() State {
	return v.e.State()
}

// View returns the read-only capability over this engine.
func (e *Engine) View() View {
	return readOnlyView{e: e}
}

// SaveSnapshot persists the full working state and returns the snapshot ID.
func (e *Engine) SaveSnapshot(ctx context.Context) (string, error) {
	if e.snapshots == nil {
		return "", ErrSnapshotsDisabled
	}
	l1, l2, l3 := e.synaptic.State()
	state := &snapshot.State{
		SynapticL1:     l1,
		SynapticL2:     l2,
		SynapticL3:     l3,
		SynapticEvents: e.synaptic.Events(),
		Ring:           e.ring.Export(),
		Filter:         e.filter.State(),
		DriftState:     e.monitor.State().String(),
	}
	return e.snapshots.Save(ctx, state)
}

// RestoreLatest loads the newest snapshot into the live state. Returns
// snapshot.ErrNoSnapshot when the store is empty; the caller decides whether
// a cold start is acceptable.
func (e *Engine) RestoreLatest(ctx context.Context) error {
	if e.snapshots == nil {
		return ErrSnapshotsDisabled
	}
	state, err := e.snapshots.Latest(ctx)
	if err != nil {
		return err
	}
	return e.restore(state)
}

// restore applies a loaded snapshot to every stateful collaborator.
func (e *Engine) restore(state *snapshot.State) error {
	if err := e.synaptic.Restore(state.SynapticL1, state.SynapticL2, state.SynapticL3, state.SynapticEvents); err != nil {
		return err
	}
	if err := e.ring.Restore(state.Ring); err != nil {
		return err
	}
	e.filter.Restore(state.Filter)
	if state.DriftState != "" {
		ds, err := drift.ParseState(state.DriftState)
		if err != nil {
			return fmt.Errorf("restoring drift state: %w", err)
		}
		e.monitor.Restore(ds)
	}
	return nil
}
