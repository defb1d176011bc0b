package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/policy"
	"github.com/sentra-io/sentra/internal/provenance"
	"github.com/sentra-io/sentra/internal/snapshot"
)

func TestSaveRestoreSnapshot_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := snapshot.NewStore(dbPath, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deps := testDeps(t)
	deps.Snapshots = store
	e, err := New(deps)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ev := testEvent(t, 0.9)
		ev.Vector = []float32{float32(i), 1, 0, 0}
		_, err := e.ProcessEvent(context.Background(), ev)
		require.NoError(t, err)
	}
	before := e.State()

	id, err := e.SaveSnapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, id, "snap_")

	// A fresh engine with the same shapes resumes from the snapshot.
	restoredDeps := testDeps(t)
	restoredDeps.Snapshots = store
	restored, err := New(restoredDeps)
	require.NoError(t, err)
	require.NoError(t, restored.RestoreLatest(context.Background()))

	after := restored.State()
	assert.Equal(t, before.SynapticEvents, after.SynapticEvents)
	assert.Equal(t, before.RingSize, after.RingSize)
	assert.Equal(t, before.TotalAdmitted, after.TotalAdmitted)
	assert.Equal(t, before.Filter, after.Filter)
	assert.Equal(t, before.DriftState, after.DriftState)

	// Retrieval behavior reproduces exactly.
	query := []float32{3, 1, 0, 0}
	want, err := e.Retrieve(context.Background(), query, 3, pelm.Options{})
	require.NoError(t, err)
	got, err := restored.Retrieve(context.Background(), query, 3, pelm.Options{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshot_Disabled(t *testing.T) {
	e := testEngine(t)
	_, err := e.SaveSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
	assert.ErrorIs(t, e.RestoreLatest(context.Background()), ErrSnapshotsDisabled)
}

func TestRestoreLatest_EmptyStore(t *testing.T) {
	store, err := snapshot.NewStore(filepath.Join(t.TempDir(), "snapshots.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deps := testDeps(t)
	deps.Snapshots = store
	e, err := New(deps)
	require.NoError(t, err)
	assert.ErrorIs(t, e.RestoreLatest(context.Background()), snapshot.ErrNoSnapshot)
}

func TestProcessEvent_PolicyDenied(t *testing.T) {
	deps := testDeps(t)
	pe, err := policy.NewEngine(context.Background(), policy.AdmissionConfig{MinTrustTier: 95})
	require.NoError(t, err)
	deps.Policy = pe
	e, err := New(deps)
	require.NoError(t, err)

	// user_input carries tier 90, below the 95 floor.
	snap, err := e.ProcessEvent(context.Background(), testEvent(t, 0.9))
	require.NoError(t, err)
	assert.True(t, snap.Accepted)
	assert.True(t, snap.PolicyDenied)
	assert.NotEmpty(t, snap.Reasons)
	assert.Equal(t, pelm.RejectedIndex, snap.MemoryIndex)
	assert.Zero(t, e.State().RingSize)
	assert.Zero(t, e.State().SynapticEvents)
}

func TestProcessEvent_PolicyAllowsOperator(t *testing.T) {
	deps := testDeps(t)
	pe, err := policy.NewEngine(context.Background(), policy.AdmissionConfig{MinTrustTier: 95})
	require.NoError(t, err)
	deps.Policy = pe
	e, err := New(deps)
	require.NoError(t, err)

	ev := testEvent(t, 0.9)
	prov, err := provenance.New(provenance.SourceOperator, 1.0, "operator note", time.Now())
	require.NoError(t, err)
	ev.Prov = prov

	snap, err := e.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, snap.PolicyDenied)
	assert.Equal(t, 0, snap.MemoryIndex)
}
