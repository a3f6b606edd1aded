package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/internal/embed"
	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/gemini"
	"github.com/askdoc/askdoc/internal/ingest"
	"github.com/askdoc/askdoc/internal/lexical"
	"github.com/askdoc/askdoc/internal/logging"
	"github.com/askdoc/askdoc/internal/parse"
	"github.com/askdoc/askdoc/internal/search"
	"github.com/askdoc/askdoc/internal/store"
)

// app bundles the wired service graph behind the CLI commands. Components
// are built once from the resolved config and shared across a command run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cleanup []func()

	client  *gemini.Client // nil when no API key is configured
	jobs    *store.SQLiteJobStore
	cache   *store.SQLitePageCache
	manager *lexical.Manager
	engine  *search.Engine
	queue   *ingest.Queue
}

// newApp wires the service graph. withQueue controls whether the ingestion
// pipeline (parser, page cache, job queue) is constructed; query-only
// commands skip it so they work without parser credentials.
func newApp(ctx context.Context, withQueue bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:         cfg.LogLevel,
		FilePath:      cfg.LogFile,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	a.cleanup = append(a.cleanup, logCleanup)

	if cfg.Parser.APIKey != "" {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.Parser.APIKey,
			ParseModel:  cfg.Parser.Model,
			EmbedModel:  cfg.Embeddings.Model,
			ExpandModel: cfg.Parser.Model,
			EmbedDims:   cfg.Embeddings.Dimensions,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.client = client
	}

	docEmbedder, queryEmbedder, err := a.buildEmbedders()
	if err != nil {
		a.close()
		return nil, err
	}

	a.manager = lexical.NewManager(cfg.TenantDir, logger)

	var expander search.Expander
	if a.client != nil {
		expander = a.client
	}
	planner := search.NewPlanner(expander, cfg.Retrieval.ExpansionCacheSize, logger)
	a.engine = search.NewEngine(cfg, a.manager, planner, docEmbedder, queryEmbedder, logger)

	if withQueue {
		if err := a.buildQueue(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// buildEmbedders returns the document-side and query-side embedders. The
// Gemini provider issues different task types for the two sides.
func (a *app) buildEmbedders() (embed.Embedder, embed.Embedder, error) {
	switch a.cfg.Embeddings.Provider {
	case "hash":
		static := embed.NewStaticEmbedder()
		return static, static, nil
	case "", "gemini":
		if a.client == nil {
			return nil, nil, askerr.New(askerr.ErrCodeConfigInvalid,
				"embeddings.provider is gemini but no API key is set (use ASKDOC_GEMINI_API_KEY, or embeddings.provider: hash)", nil)
		}
		docs := embed.NewCachedEmbedder(
			embed.NewGeminiEmbedder(a.client, a.cfg.Embeddings.Model),
			a.cfg.Embeddings.CacheSize)
		query := embed.NewCachedEmbedder(
			embed.NewGeminiQueryEmbedder(a.client, a.cfg.Embeddings.Model),
			a.cfg.Embeddings.CacheSize)
		return docs, query, nil
	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider %q", a.cfg.Embeddings.Provider)
	}
}

func (a *app) buildQueue() error {
	if a.client == nil {
		return askerr.New(askerr.ErrCodeConfigInvalid,
			"ingestion requires a parser API key (ASKDOC_GEMINI_API_KEY)", nil)
	}

	jobs, err := store.NewSQLiteJobStore(filepath.Join(a.cfg.DataDir, "jobs.db"))
	if err != nil {
		return err
	}
	a.jobs = jobs
	a.cleanup = append(a.cleanup, func() { _ = jobs.Close() })

	cache, err := store.NewSQLitePageCache(filepath.Join(a.cfg.DataDir, "pagecache.db"))
	if err != nil {
		return err
	}
	a.cache = cache
	a.cleanup = append(a.cleanup, func() { _ = cache.Close() })

	retry := askerr.RetryConfig{
		MaxRetries:   a.cfg.Parser.MaxRetries,
		InitialDelay: a.cfg.Parser.InitialBackoff,
		MaxDelay:     8 * a.cfg.Parser.InitialBackoff,
		Multiplier:   2.0,
	}
	processor := parse.NewProcessor(a.client, cache, retry, a.logger)

	tenantIndex := func(uid string) (ingest.ChunkIndexer, error) {
		return a.engine.Tenant(uid)
	}
	runner := ingest.NewRunner(processor, jobs, tenantIndex, a.engine, a.cfg.Ingest.MaxConcurrency, a.logger)
	a.queue = ingest.NewQueue(runner, jobs, a.cfg.Ingest.QueueSize, a.logger)
	return nil
}

// jobStore opens the job store without the rest of the ingestion pipeline,
// for read-only status commands.
func (a *app) jobStore() (*store.SQLiteJobStore, error) {
	if a.jobs != nil {
		return a.jobs, nil
	}
	jobs, err := store.NewSQLiteJobStore(filepath.Join(a.cfg.DataDir, "jobs.db"))
	if err != nil {
		return nil, err
	}
	a.jobs = jobs
	a.cleanup = append(a.cleanup, func() { _ = jobs.Close() })
	return jobs, nil
}

func (a *app) close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.engine != nil {
		_ = a.engine.Close()
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}
