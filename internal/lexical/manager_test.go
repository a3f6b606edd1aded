package lexical

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/store"
)

type fakeSource struct {
	chunks []*store.Chunk
}

func (f *fakeSource) AllDocIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, len(f.chunks))
	for i, c := range f.chunks {
		ids[i] = c.DocID
	}
	return ids, nil
}

func (f *fakeSource) GetChunks(ctx context.Context, filter store.Filter) ([]*store.Chunk, error) {
	return f.chunks, nil
}

func testChunk(docName string, page, i int, content string) *store.Chunk {
	return &store.Chunk{
		DocID:     store.ChunkID(docName, page, i),
		DocName:   docName,
		Page:      page,
		ChunkType: store.ChunkTypeText,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := NewManager(func(uid string) string {
		return filepath.Join(dir, "tenants", uid)
	}, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m, dir
}

func TestManagerRebuildAndSearch(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement procedure"),
		testChunk("manual.pdf", 2, 0, "valve inspection checklist"),
	}}

	idx, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	results, err := idx.Search(ctx, "pump seal", 10, store.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, store.ChunkID("manual.pdf", 1, 0), results[0].DocID)
}

func TestManagerReusesOpenHandleWithoutTokenizing(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
	}}

	first, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	counting := NewCountingTokenizer(ActiveTokenizer())
	SetActiveTokenizer(counting)
	defer SetActiveTokenizer(nil)

	second, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 0, counting.Calls())
}

func TestManagerReopensSnapshotWithoutTokenizing(t *testing.T) {
	dir := t.TempDir()
	tenantDir := func(uid string) string { return filepath.Join(dir, "tenants", uid) }
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
		testChunk("manual.pdf", 2, 0, "valve inspection"),
	}}

	first := NewManager(tenantDir, nil)
	_, err := first.Get(ctx, "u1", src, false)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	counting := NewCountingTokenizer(ActiveTokenizer())
	SetActiveTokenizer(counting)
	defer SetActiveTokenizer(nil)

	// A fresh manager simulates a process restart. The persisted snapshot
	// still matches the chunk store, so no content is re-tokenized.
	second := NewManager(tenantDir, nil)
	defer func() { _ = second.Close() }()
	idx, err := second.Get(ctx, "u1", src, false)
	require.NoError(t, err)
	assert.Equal(t, 0, counting.Calls())

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestManagerForcedRebuildsWhenDocSetChanges(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
	}}

	first, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	src.chunks = append(src.chunks, testChunk("guide.pdf", 1, 0, "lockout tagout steps"))

	idx, err := m.Get(ctx, "u1", src, true)
	require.NoError(t, err)
	assert.NotSame(t, first, idx)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	results, err := idx.Search(ctx, "lockout", 10, store.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestManagerForcedGetReusesUnchangedSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
		testChunk("manual.pdf", 2, 0, "valve inspection"),
	}}

	first, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	counting := NewCountingTokenizer(ActiveTokenizer())
	SetActiveTokenizer(counting)
	defer SetActiveTokenizer(nil)

	// A forced refresh over an unchanged corpus must reuse the snapshot:
	// re-ingesting an already indexed document tokenizes nothing.
	second, err := m.Get(ctx, "u1", src, true)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 0, counting.Calls())
}

func TestManagerReadPathKeepsPreviousGeneration(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
	}}

	first, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	// Readers stay on the open generation even if the chunk store has
	// diverged; only a forced refresh picks up the change.
	src.chunks = append(src.chunks, testChunk("guide.pdf", 1, 0, "lockout tagout steps"))

	stale, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)
	assert.Same(t, first, stale)

	count, err := stale.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	fresh, err := m.Get(ctx, "u1", src, true)
	require.NoError(t, err)
	count, err = fresh.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestManagerRecoversFromCorruptManifest(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
	}}

	_, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	manifestPath := filepath.Join(dir, "tenants", "u1", "lexical", manifestName)
	require.NoError(t, os.WriteFile(manifestPath, []byte("{not json"), 0o644))

	fresh := NewManager(func(uid string) string {
		return filepath.Join(dir, "tenants", uid)
	}, nil)
	defer func() { _ = fresh.Close() }()

	idx, err := fresh.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	results, err := idx.Search(ctx, "pump", 10, store.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestManagerFilterPushdown(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	src := &fakeSource{chunks: []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pump seal replacement"),
		testChunk("manual.pdf", 2, 0, "pump impeller cleaning"),
		testChunk("guide.pdf", 1, 0, "pump startup sequence"),
	}}

	idx, err := m.Get(ctx, "u1", src, false)
	require.NoError(t, err)

	results, err := idx.Search(ctx, "pump", 10, store.Filter{DocName: "manual.pdf"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = idx.Search(ctx, "pump", 10, store.Filter{DocName: "manual.pdf", Page: 2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, store.ChunkID("manual.pdf", 2, 0), results[0].DocID)
}

func TestManifestMatches(t *testing.T) {
	m := NewManifest([]string{"b", "a"}, TokenizerHangulBigram)

	assert.True(t, m.Matches([]string{"a", "b"}, TokenizerHangulBigram))
	assert.False(t, m.Matches([]string{"a"}, TokenizerHangulBigram))
	assert.False(t, m.Matches([]string{"a", "c"}, TokenizerHangulBigram))
	assert.False(t, m.Matches([]string{"a", "b"}, TokenizerWhitespace))
}
