package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/askdoc/askdoc/internal/lexical"
	"github.com/askdoc/askdoc/internal/store"
)

// DefaultKPerBranch is the per-branch candidate count before fusion.
const DefaultKPerBranch = 40

// LexicalSearcher is the keyword branch of the retriever.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int, filter store.Filter) ([]lexical.Result, error)
}

// ChunkFetcher resolves lexical hit IDs back to full chunks.
type ChunkFetcher interface {
	GetChunksByID(ctx context.Context, ids []string) ([]*store.Chunk, error)
}

// SemanticSearcher is the embedding branch of the retriever.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, k int, filter store.Filter) ([]*store.Chunk, error)
}

// Retriever runs both branches concurrently and fuses their rankings.
type Retriever struct {
	lexical  LexicalSearcher
	chunks   ChunkFetcher
	semantic SemanticSearcher
	weights  Weights
	rrfC     int
	logger   *slog.Logger
}

// NewRetriever wires a hybrid retriever over the two branches.
func NewRetriever(lex LexicalSearcher, chunks ChunkFetcher, sem SemanticSearcher, weights Weights, rrfC int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if rrfC <= 0 {
		rrfC = DefaultRRFConstant
	}
	return &Retriever{
		lexical:  lex,
		chunks:   chunks,
		semantic: sem,
		weights:  weights,
		rrfC:     rrfC,
		logger:   logger,
	}
}

// Retrieve queries both branches with the filter pushed down, fuses the
// rankings, and returns at most 2*kPerBranch distinct chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, kPerBranch int, filter store.Filter) ([]*store.Chunk, error) {
	if kPerBranch <= 0 {
		kPerBranch = DefaultKPerBranch
	}

	var lexChunks, semChunks []*store.Chunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.lexical.Search(gctx, query, kPerBranch, filter)
		if err != nil {
			return err
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.DocID
		}
		lexChunks, err = r.chunks.GetChunksByID(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		semChunks, err = r.semantic.Search(gctx, query, kPerBranch, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(
		[][]*store.Chunk{lexChunks, semChunks},
		[]float64{r.weights.Lexical, r.weights.Semantic},
		r.rrfC,
		2*kPerBranch,
	)

	r.logger.Debug("hybrid_retrieve",
		slog.String("query", query),
		slog.Int("lexical_hits", len(lexChunks)),
		slog.Int("semantic_hits", len(semChunks)),
		slog.Int("fused", len(fused)))
	return fused, nil
}
