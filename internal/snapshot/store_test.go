package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-io/sentra/internal/moral"
	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/provenance"
)

func testStore(t *testing.T, sealKey string) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "snapshots.db"), sealKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testState(t *testing.T, createdAt time.Time) *State {
	t.Helper()
	prov, err := provenance.New(provenance.SourceUserInput, 0.9, "remembered", time.Now())
	require.NoError(t, err)
	return &State{
		CreatedAt:      createdAt,
		SynapticL1:     []float32{1, 2, 3},
		SynapticL2:     []float32{0.5, 0.25, 0},
		SynapticL3:     []float32{0.1, 0, 0},
		SynapticEvents: 42,
		Ring: pelm.RingState{
			Dim:      3,
			Capacity: 4,
			Head:     1,
			Size:     1,
			NextID:   1,
			Total:    1,
			Records: []pelm.Record{{
				Vector:   []float32{1, 0, 0},
				Phase:    0.25,
				Prov:     prov,
				MemoryID: 0,
			}},
		},
		Filter: moral.ThresholdState{
			Threshold:     0.55,
			EMAAcceptRate: 0.61,
		},
		DriftState: "warn",
	}
}

func TestSaveLatest_RoundTrip(t *testing.T) {
	s := testStore(t, "")
	want := testState(t, time.Now().UTC())

	id, err := s.Save(context.Background(), want)
	require.NoError(t, err)
	assert.Contains(t, id, "snap_")

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.SynapticL1, got.SynapticL1)
	assert.Equal(t, want.SynapticEvents, got.SynapticEvents)
	assert.Equal(t, want.Ring.NextID, got.Ring.NextID)
	require.Len(t, got.Ring.Records, 1)
	assert.Equal(t, want.Ring.Records[0].Vector, got.Ring.Records[0].Vector)
	assert.Equal(t, provenance.SourceUserInput, got.Ring.Records[0].Prov.Source)
	assert.Equal(t, 0.55, got.Filter.Threshold)
	assert.Equal(t, "warn", got.DriftState)
}

func TestLatest_Empty(t *testing.T) {
	s := testStore(t, "")
	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLatest_ReturnsNewest(t *testing.T) {
	s := testStore(t, "")
	base := time.Now().UTC()

	old := testState(t, base.Add(-time.Hour))
	old.SynapticEvents = 1
	_, err := s.Save(context.Background(), old)
	require.NoError(t, err)

	fresh := testState(t, base)
	fresh.SynapticEvents = 2
	_, err = s.Save(context.Background(), fresh)
	require.NoError(t, err)

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.SynapticEvents)
}

func TestGet_ByID(t *testing.T) {
	s := testStore(t, "")
	id, err := s.Save(context.Background(), testState(t, time.Now().UTC()))
	require.NoError(t, err)

	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.SynapticEvents)

	_, err = s.Get(context.Background(), "snap_missing")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSealedRoundTrip(t *testing.T) {
	s := testStore(t, "a sealing passphrase")
	require.True(t, s.Sealed())

	_, err := s.Save(context.Background(), testState(t, time.Now().UTC()))
	require.NoError(t, err)

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.SynapticEvents)

	infos, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Sealed)
}

func TestSealed_WrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.db")

	s1, err := NewStore(path, "first passphrase")
	require.NoError(t, err)
	_, err = s1.Save(context.Background(), testState(t, time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewStore(path, "second passphrase")
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.Latest(context.Background())
	assert.ErrorIs(t, err, ErrSealOpen)
}

func TestSealed_MissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.db")

	s1, err := NewStore(path, "a sealing passphrase")
	require.NoError(t, err)
	_, err = s1.Save(context.Background(), testState(t, time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewStore(path, "")
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.Latest(context.Background())
	assert.ErrorIs(t, err, ErrSealOpen)
}

func TestPrune_KeepsNewest(t *testing.T) {
	s := testStore(t, "")
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		st := testState(t, base.Add(time.Duration(i)*time.Minute))
		st.SynapticEvents = uint64(i)
		_, err := s.Save(context.Background(), st)
		require.NoError(t, err)
	}

	pruned, err := s.Prune(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)

	infos, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	got, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.SynapticEvents)
}

func TestList_Limit(t *testing.T) {
	s := testStore(t, "")
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := s.Save(context.Background(), testState(t, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	infos, err := s.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}
