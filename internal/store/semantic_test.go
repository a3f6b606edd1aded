package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns fixed vectors per text so similarity order is
// controlled by the test.
type fakeEmbedder struct {
	vecs  map[string][]float32
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 1, 1}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func newTestSemanticStore(t *testing.T, emb Embedder) *SemanticStore {
	t.Helper()
	s, err := NewSemanticStore(":memory:", emb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSemanticStoreAddAndSearch(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"pump seal":   {1, 0, 0},
		"valve check": {0, 1, 0},
		"wiring":      {0, 0, 1},
		"seal repair": {0.9, 0.1, 0},
	}}
	s := newTestSemanticStore(t, emb)
	ctx := context.Background()

	chunks := []*Chunk{
		chunkFixture("manual.pdf", 1, 0, "pump seal"),
		chunkFixture("manual.pdf", 2, 0, "valve check"),
		chunkFixture("manual.pdf", 3, 0, "wiring"),
	}
	require.NoError(t, s.Add(ctx, chunks))

	results, err := s.Search(ctx, "seal repair", 2, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "pump seal", results[0].Content)
}

func TestSemanticStoreSplitsDocAndQueryEmbedders(t *testing.T) {
	docEmb := &fakeEmbedder{vecs: map[string][]float32{
		"pump seal": {1, 0, 0},
	}}
	queryEmb := &fakeEmbedder{vecs: map[string][]float32{
		"seal repair": {0.9, 0.1, 0},
	}}
	s, err := NewSemanticStore(":memory:", docEmb, queryEmb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{chunkFixture("manual.pdf", 1, 0, "pump seal")}))
	assert.Equal(t, 1, docEmb.calls)
	assert.Equal(t, 0, queryEmb.calls)

	results, err := s.Search(ctx, "seal repair", 1, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, docEmb.calls)
	assert.Equal(t, 1, queryEmb.calls)
}

func TestSemanticStoreSearchWithFilter(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"pump seal": {1, 0, 0},
		"pump oil":  {0.9, 0.1, 0},
		"query":     {1, 0, 0},
	}}
	s := newTestSemanticStore(t, emb)
	ctx := context.Background()

	chunks := []*Chunk{
		chunkFixture("manual.pdf", 1, 0, "pump seal"),
		chunkFixture("guide.pdf", 1, 0, "pump oil"),
	}
	require.NoError(t, s.Add(ctx, chunks))

	results, err := s.Search(ctx, "query", 5, Filter{DocName: "guide.pdf"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "guide.pdf", results[0].DocName)
}

func TestSemanticStoreDeleteDocument(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{}}
	s := newTestSemanticStore(t, emb)
	ctx := context.Background()

	chunks := []*Chunk{
		chunkFixture("manual.pdf", 1, 0, "a"),
		chunkFixture("manual.pdf", 1, 1, "b"),
		chunkFixture("guide.pdf", 1, 0, "c"),
	}
	require.NoError(t, s.Add(ctx, chunks))

	n, err := s.DeleteDocument(ctx, "manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"guide.pdf"}, docs)
}

func TestSemanticStoreRebuildFromPersistedVectors(t *testing.T) {
	dbPath := t.TempDir() + "/chunks.db"
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"pump seal":   {1, 0, 0},
		"valve check": {0, 1, 0},
	}}

	first, err := NewSemanticStore(dbPath, emb, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, first.Add(ctx, []*Chunk{
		chunkFixture("manual.pdf", 1, 0, "pump seal"),
		chunkFixture("manual.pdf", 2, 0, "valve check"),
	}))
	require.NoError(t, first.Close())

	addCalls := emb.calls

	// Reopening rebuilds the graph from stored vectors, not the embedder.
	second, err := NewSemanticStore(dbPath, emb, nil)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	assert.Equal(t, addCalls, emb.calls)

	results, err := second.Search(ctx, "pump seal", 1, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pump seal", results[0].Content)
}

func TestSemanticStoreGetOrderedByDocID(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{}}
	s := newTestSemanticStore(t, emb)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []*Chunk{
		chunkFixture("manual.pdf", 2, 0, "b"),
		chunkFixture("manual.pdf", 1, 0, "a"),
	}))

	got, err := s.Get(ctx, Filter{DocName: "manual.pdf"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ChunkID("manual.pdf", 1, 0), got[0].DocID)
}
