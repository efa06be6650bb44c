package faceindex

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egrangel/facerecon-sub001/internal/data"
)

// fakeStore returns a swappable row set so tests can simulate re-enrollment
// between builds.
type fakeStore struct {
	mu    sync.Mutex
	rows  []data.EnrolledFace
	calls int
	err   error
}

func (s *fakeStore) ListActiveEnrolled(ctx context.Context) ([]data.EnrolledFace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]data.EnrolledFace, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeStore) setRows(rows []data.EnrolledFace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func enrolled(faceID, personID int64, name string, vec []float32) data.EnrolledFace {
	return data.EnrolledFace{
		FaceID:     faceID,
		PersonID:   personID,
		PersonName: name,
		Embedding:  EncodeVector(vec),
	}
}

func TestInitialize_DiscoversDimensionAndSkipsBadRows(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
		enrolled(2, 20, "bob", []float32{0, 1, 0}), // wrong dimension
		{FaceID: 3, PersonID: 30, PersonName: "carol", Embedding: []byte{1, 2, 3}}, // truncated blob
		enrolled(4, 40, "dave", []float32{0, 0, 1, 0}),
	}}
	ix := New(store, Config{})

	require.NoError(t, ix.Initialize(context.Background()))
	assert.Equal(t, 2, ix.Count())
	assert.Equal(t, 4, ix.Dimension())
}

func TestSearch_ExactMatchIsConfirmable(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
		enrolled(2, 20, "bob", []float32{0, 1, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	matches := ix.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NotEmpty(t, matches)

	best := matches[0]
	assert.Equal(t, int64(1), best.PersonFaceID)
	assert.Equal(t, "alice", best.PersonName)
	assert.Equal(t, 1.0, best.Similarity)
	assert.True(t, best.IsMatch)
}

func TestSearch_OrthogonalVectorIsBelowThreshold(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	// Orthogonal vectors have cosine distance 1, so similarity 1-1/2 = 0.5.
	matches := ix.Search(context.Background(), []float32{0, 1, 0, 0}, 10)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.5, matches[0].Similarity, 1e-6)
	assert.False(t, matches[0].IsMatch)
}

func TestSearch_EmptyIndexReturnsNothing(t *testing.T) {
	store := &fakeStore{}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	assert.Empty(t, ix.Search(context.Background(), []float32{1, 0, 0, 0}, 10))
}

func TestRemove_FaceIsFilteredFromResults(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
		enrolled(2, 20, "bob", []float32{0.9, 0.1, 0, 0}),
		enrolled(3, 30, "carol", []float32{0.8, 0.2, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	ix.Remove(1)
	assert.Equal(t, 2, ix.Count())

	matches := ix.Search(context.Background(), []float32{1, 0, 0, 0}, 3)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.NotEqual(t, int64(1), m.PersonFaceID)
	}
}

func TestAdd_NewFaceBecomesSearchable(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	require.NoError(t, ix.Add(context.Background(), enrolled(2, 20, "bob", []float32{0, 1, 0, 0})))
	assert.Equal(t, 2, ix.Count())

	matches := ix.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(2), matches[0].PersonFaceID)
}

func TestAdd_DuplicateFaceIsNoop(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	require.NoError(t, ix.Add(context.Background(), enrolled(1, 10, "alice", []float32{1, 0, 0, 0})))
	assert.Equal(t, 1, ix.Count())
}

func TestAdd_DimensionMismatchFails(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))

	err := ix.Add(context.Background(), enrolled(2, 20, "bob", []float32{1, 0, 0}))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAdd_CapacityExhaustionRebuildsAndRetries(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	// Capacity after the build is max(2*1, 2) = 2: one add fits, the next
	// one forces a rebuild-and-retry.
	ix := New(store, Config{MinCapacity: 2})
	require.NoError(t, ix.Initialize(context.Background()))

	require.NoError(t, ix.Add(context.Background(), enrolled(2, 20, "bob", []float32{0, 1, 0, 0})))
	callsBefore := store.callCount()

	require.NoError(t, ix.Add(context.Background(), enrolled(3, 30, "carol", []float32{0, 0, 1, 0})))
	assert.Equal(t, callsBefore+1, store.callCount(), "second add should rebuild from the store")

	matches := ix.Search(context.Background(), []float32{0, 0, 1, 0}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].PersonFaceID)
}

func TestSearch_QueryDimensionMismatchTriggersRebuild(t *testing.T) {
	store := &fakeStore{rows: []data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0, 0}),
	}}
	ix := New(store, Config{})
	require.NoError(t, ix.Initialize(context.Background()))
	require.Equal(t, 4, ix.Dimension())

	// The enrolled embeddings switch families, e.g. after re-enrollment
	// against a new model.
	store.setRows([]data.EnrolledFace{
		enrolled(1, 10, "alice", []float32{1, 0, 0}),
	})

	matches := ix.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, ix.Dimension())
	assert.Equal(t, 1.0, matches[0].Similarity)
}

func TestSetThreshold_Bounds(t *testing.T) {
	ix := New(&fakeStore{}, Config{})

	assert.ErrorIs(t, ix.SetThreshold(-0.1), ErrInvalidThreshold)
	assert.ErrorIs(t, ix.SetThreshold(1.1), ErrInvalidThreshold)

	require.NoError(t, ix.SetThreshold(ThresholdFaceNet))
	assert.Equal(t, ThresholdFaceNet, ix.Threshold())
}

func TestNew_DefaultThreshold(t *testing.T) {
	ix := New(&fakeStore{}, Config{})
	assert.Equal(t, ThresholdArcFace, ix.Threshold())
}

func TestSearch_BeforeInitializeReturnsNothing(t *testing.T) {
	ix := New(&fakeStore{}, Config{})
	assert.Empty(t, ix.Search(context.Background(), []float32{1, 0, 0, 0}, 10))
}
