package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/internal/lexical"
	"github.com/askdoc/askdoc/internal/store"
)

// Engine is the per-tenant retrieval front end: it owns the tenant store
// registry, the lexical index manager, and the query planner, and executes
// the multi-query retrieval plan.
type Engine struct {
	cfg           *config.Config
	manager       *lexical.Manager
	planner       *Planner
	docEmbedder   store.Embedder
	queryEmbedder store.Embedder
	logger        *slog.Logger

	mu      sync.RWMutex
	tenants map[string]*store.SemanticStore
}

// NewEngine creates a retrieval engine. Tenant semantic stores are opened
// on demand with docEmbedder for indexing and queryEmbedder for searches;
// a nil queryEmbedder falls back to docEmbedder.
func NewEngine(cfg *config.Config, manager *lexical.Manager, planner *Planner, docEmbedder, queryEmbedder store.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:           cfg,
		manager:       manager,
		planner:       planner,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		logger:        logger,
		tenants:       make(map[string]*store.SemanticStore),
	}
}

// Tenant returns the semantic store for uid, opening it on first use.
func (e *Engine) Tenant(uid string) (*store.SemanticStore, error) {
	e.mu.RLock()
	s, ok := e.tenants[uid]
	e.mu.RUnlock()
	if ok {
		return s, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.tenants[uid]; ok {
		return s, nil
	}

	dbPath := filepath.Join(e.cfg.TenantDir(uid), "chunks.db")
	s, err := store.NewSemanticStore(dbPath, e.docEmbedder, e.queryEmbedder)
	if err != nil {
		return nil, err
	}
	e.tenants[uid] = s
	return s, nil
}

// Refresh forces the tenant's lexical index to be rebuilt against the
// current corpus. Called after an ingestion job lands new chunks.
func (e *Engine) Refresh(ctx context.Context, uid string) error {
	tenant, err := e.Tenant(uid)
	if err != nil {
		return err
	}
	_, err = e.manager.Get(ctx, uid, tenant.Chunks(), true)
	return err
}

// QueryResult is the assembled context window plus the plan that
// produced it, so callers can report how the question was interpreted.
type QueryResult struct {
	Chunks        []*store.Chunk
	ExpandedQuery string
	RefinedQuery  string
	PageFilter    int
}

// Query plans and executes retrieval for one question, returning the
// assembled context window.
func (e *Engine) Query(ctx context.Context, uid, rawQuery string, history []string, docScope string) (*QueryResult, error) {
	tenant, err := e.Tenant(uid)
	if err != nil {
		return nil, err
	}

	idx, err := e.manager.Get(ctx, uid, tenant.Chunks(), false)
	if err != nil {
		return nil, err
	}

	plan := e.planner.Plan(ctx, rawQuery, history, docScope)
	filter := store.Filter{DocName: plan.DocScope, Page: plan.PageFilter}

	kPerBranch := e.cfg.Retrieval.KPerBranch
	if !filter.IsZero() {
		// A pre-filter shrinks the candidate space, so each branch can
		// afford to go deeper.
		kPerBranch *= 2
	}

	retriever := NewRetriever(
		idx,
		tenant.Chunks(),
		tenant,
		Weights{Lexical: e.cfg.Retrieval.LexicalWeight, Semantic: e.cfg.Retrieval.SemanticWeight},
		e.cfg.Retrieval.RRFConstant,
		e.logger,
	)

	lists := make([][]*store.Chunk, 0, 3)
	for _, q := range plan.Queries() {
		chunks, err := retriever.Retrieve(ctx, q, kPerBranch, filter)
		if err != nil {
			return nil, err
		}
		lists = append(lists, chunks)
	}

	assembler := NewAssembler(tenant, e.cfg.Retrieval.MaxContext, e.logger)
	result := assembler.Assemble(ctx, lists)

	e.logger.Info("query_executed",
		slog.String("uid", uid),
		slog.Int("sub_queries", len(lists)),
		slog.Int("page_filter", plan.PageFilter),
		slog.String("doc_scope", plan.DocScope),
		slog.Int("context_chunks", len(result)))
	return &QueryResult{
		Chunks:        result,
		ExpandedQuery: plan.ExpandedQuery,
		RefinedQuery:  plan.RefinedQuery,
		PageFilter:    plan.PageFilter,
	}, nil
}

// Close releases all tenant stores and the lexical manager.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for uid, s := range e.tenants {
		if err := s.Close(); err != nil {
			e.logger.Warn("tenant_store_close_failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()))
		}
	}
	e.tenants = make(map[string]*store.SemanticStore)
	return e.manager.Close()
}
