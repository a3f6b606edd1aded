package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/lexical"
	"github.com/askdoc/askdoc/internal/store"
)

type fakeLexical struct {
	results []lexical.Result
	filter  store.Filter
	err     error
}

func (f *fakeLexical) Search(ctx context.Context, query string, k int, filter store.Filter) ([]lexical.Result, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

type fakeFetcher struct {
	byID map[string]*store.Chunk
}

func (f *fakeFetcher) GetChunksByID(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeSemantic struct {
	results []*store.Chunk
	filter  store.Filter
	err     error
}

func (f *fakeSemantic) Search(ctx context.Context, query string, k int, filter store.Filter) ([]*store.Chunk, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func TestRetrieverFusesBranches(t *testing.T) {
	a := fusionChunk("a")
	b := fusionChunk("b")
	c := fusionChunk("c")

	lex := &fakeLexical{results: []lexical.Result{{DocID: "a"}, {DocID: "b"}}}
	fetch := &fakeFetcher{byID: map[string]*store.Chunk{"a": a, "b": b}}
	sem := &fakeSemantic{results: []*store.Chunk{b, c}}

	r := NewRetriever(lex, fetch, sem, DefaultWeights(), DefaultRRFConstant, nil)
	out, err := r.Retrieve(context.Background(), "query", 40, store.Filter{})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].DocID)
}

func TestRetrieverPushesFilterToBothBranches(t *testing.T) {
	lex := &fakeLexical{}
	sem := &fakeSemantic{}
	fetch := &fakeFetcher{}

	r := NewRetriever(lex, fetch, sem, DefaultWeights(), DefaultRRFConstant, nil)
	filter := store.Filter{DocName: "manual.pdf", Page: 7}
	_, err := r.Retrieve(context.Background(), "query", 40, filter)
	require.NoError(t, err)

	assert.Equal(t, filter, lex.filter)
	assert.Equal(t, filter, sem.filter)
}

func TestRetrieverCapsAtTwiceK(t *testing.T) {
	var lexResults []lexical.Result
	byID := make(map[string]*store.Chunk)
	var semResults []*store.Chunk
	for i := 0; i < 5; i++ {
		lexID := store.ChunkID("lex", i+1, 0)
		lexResults = append(lexResults, lexical.Result{DocID: lexID})
		byID[lexID] = fusionChunk(lexID)
		semResults = append(semResults, fusionChunk(store.ChunkID("sem", i+1, 0)))
	}

	lex := &fakeLexical{results: lexResults}
	sem := &fakeSemantic{results: semResults}
	r := NewRetriever(lex, &fakeFetcher{byID: byID}, sem, DefaultWeights(), DefaultRRFConstant, nil)

	out, err := r.Retrieve(context.Background(), "query", 3, store.Filter{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 6)
	assert.Len(t, out, 6)
}

func TestRetrieverPropagatesBranchError(t *testing.T) {
	lex := &fakeLexical{err: errors.New("index closed")}
	sem := &fakeSemantic{}

	r := NewRetriever(lex, &fakeFetcher{}, sem, DefaultWeights(), DefaultRRFConstant, nil)
	_, err := r.Retrieve(context.Background(), "query", 40, store.Filter{})
	require.Error(t, err)
}
