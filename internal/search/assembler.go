package search

import (
	"context"
	"log/slog"

	"github.com/askdoc/askdoc/internal/store"
)

// DefaultMaxContext caps the assembled chunk set.
const DefaultMaxContext = 100

// extensionDepth is how many leading deduplicated chunks get an
// adjacent-page lookup.
const extensionDepth = 10

// ChunkGetter fetches chunks by exact metadata match, used for
// adjacent-page context extension.
type ChunkGetter interface {
	Get(ctx context.Context, filter store.Filter) ([]*store.Chunk, error)
}

// Assembler merges ranked lists into the final bounded context window.
type Assembler struct {
	getter     ChunkGetter
	maxContext int
	logger     *slog.Logger
}

// NewAssembler creates an Assembler reading extension chunks from getter.
func NewAssembler(getter ChunkGetter, maxContext int, logger *slog.Logger) *Assembler {
	if maxContext <= 0 {
		maxContext = DefaultMaxContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{getter: getter, maxContext: maxContext, logger: logger}
}

// Assemble merges the ranked lists preserving first-seen order and
// deduplicating by exact content equality. Each of the first 10
// deduplicated chunks pulls in its document's next page from the store, so
// content split across a page boundary (a continued table, a cut-off
// procedure) stays together. Extension lookup failures are logged and
// skipped; the already-ranked chunks still form a valid context. The result
// is capped at the configured maximum.
func (a *Assembler) Assemble(ctx context.Context, lists [][]*store.Chunk) []*store.Chunk {
	seen := make(map[string]struct{})
	deduped := make([]*store.Chunk, 0)
	for _, list := range lists {
		for _, chunk := range list {
			if _, ok := seen[chunk.Content]; ok {
				continue
			}
			seen[chunk.Content] = struct{}{}
			deduped = append(deduped, chunk)
		}
	}

	result := make([]*store.Chunk, 0, len(deduped))
	for i, chunk := range deduped {
		result = append(result, chunk)
		if i >= extensionDepth || a.getter == nil {
			continue
		}
		if chunk.DocName == "" || chunk.Page <= 0 {
			continue
		}

		next, err := a.getter.Get(ctx, store.Filter{DocName: chunk.DocName, Page: chunk.Page + 1})
		if err != nil {
			a.logger.Warn("context_extension_failed",
				slog.String("doc", chunk.DocName),
				slog.Int("page", chunk.Page+1),
				slog.String("error", err.Error()))
			continue
		}
		for _, ext := range next {
			if _, ok := seen[ext.Content]; ok {
				continue
			}
			seen[ext.Content] = struct{}{}
			result = append(result, ext)
		}
	}

	if len(result) > a.maxContext {
		result = result[:a.maxContext]
	}
	return result
}
