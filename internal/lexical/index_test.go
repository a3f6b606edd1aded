package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/store"
)

func TestIndexDeleteRemovesChunks(t *testing.T) {
	idx, err := NewIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	chunks := []*store.Chunk{
		testChunk("manual.pdf", 1, 0, "pressure relief valve adjustment"),
		testChunk("manual.pdf", 2, 0, "pressure gauge calibration"),
		testChunk("other.pdf", 1, 0, "pressure sensor wiring"),
	}
	require.NoError(t, idx.Add(ctx, chunks))

	results, err := idx.Search(ctx, "pressure", 10, store.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, idx.Delete(ctx, []string{chunks[0].DocID, chunks[1].DocID}))

	results, err = idx.Search(ctx, "pressure", 10, store.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[2].DocID, results[0].DocID)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestIndexSearchBlankQuery(t *testing.T) {
	idx, err := NewIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []*store.Chunk{testChunk("manual.pdf", 1, 0, "content")}))

	results, err := idx.Search(ctx, "   ", 10, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexClosedOperationsFail(t *testing.T) {
	idx, err := NewIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	ctx := context.Background()
	assert.Error(t, idx.Add(ctx, []*store.Chunk{testChunk("manual.pdf", 1, 0, "x")}))
	_, err = idx.Search(ctx, "x", 1, store.Filter{})
	assert.Error(t, err)
	assert.NoError(t, idx.Close(), "double close is a no-op")
}
