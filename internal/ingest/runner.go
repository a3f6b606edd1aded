package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	askerr "github.com/askdoc/askdoc/internal/errors"
	"github.com/askdoc/askdoc/internal/parse"
	"github.com/askdoc/askdoc/internal/pdf"
	"github.com/askdoc/askdoc/internal/store"
)

// DefaultMaxConcurrency bounds in-flight page parses per job.
const DefaultMaxConcurrency = 100

// ChunkIndexer receives the chunks of a completed document.
type ChunkIndexer interface {
	Add(ctx context.Context, chunks []*store.Chunk) error
}

// IndexRefresher forces the tenant's lexical index to pick up new chunks.
type IndexRefresher interface {
	Refresh(ctx context.Context, uid string) error
}

// Runner executes ingestion jobs: it fans page processing out under the
// concurrency budget, tracks progress on the job record, persists chunks,
// and refreshes the tenant's retrieval state.
type Runner struct {
	processor      *parse.Processor
	jobs           store.JobStore
	tenantIndex    func(uid string) (ChunkIndexer, error)
	refresher      IndexRefresher
	maxConcurrency int
	logger         *slog.Logger
}

// NewRunner creates a Runner. refresher may be nil.
func NewRunner(processor *parse.Processor, jobs store.JobStore, tenantIndex func(uid string) (ChunkIndexer, error), refresher IndexRefresher, maxConcurrency int, logger *slog.Logger) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		processor:      processor,
		jobs:           jobs,
		tenantIndex:    tenantIndex,
		refresher:      refresher,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Run processes the document at docPath for the given job, driving the job
// record from pending to a terminal status. Page-level failures are tallied
// but never fail the job; only document-level errors do.
func (r *Runner) Run(ctx context.Context, job *store.IngestionJob, docPath string) error {
	doc, err := pdf.Open(docPath)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	defer func() { _ = doc.Close() }()

	docBytes, err := os.ReadFile(docPath)
	if err != nil {
		return r.fail(ctx, job, askerr.DocumentLoadError(docPath, err))
	}

	return r.runPages(ctx, job, docBytes, doc.Pages)
}

// runPages is the fan-out phase, split from Run so the document source is
// already resolved into per-page signals.
func (r *Runner) runPages(ctx context.Context, job *store.IngestionJob, docBytes []byte, pages []pdf.PageData) error {
	total := len(pages)
	job.Status = store.JobStatusProcessing
	job.TotalPages = total
	job.Progress = 0
	if err := r.jobs.Update(ctx, job); err != nil {
		return r.fail(ctx, job, askerr.StoreUnavailableError("job store update", err))
	}

	r.logger.Info("ingestion_started",
		slog.String("job_id", job.JobID),
		slog.String("uid", job.UID),
		slog.String("doc", job.DocName),
		slog.Int("pages", total))

	results := make([]parse.Result, total)
	var processed atomic.Int64
	var jobMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			results[i] = r.processor.Process(gctx, job.DocName, docBytes, page)

			done := processed.Add(1)
			progress := int(math.Round(float64(done) / float64(total) * 100))

			jobMu.Lock()
			job.Progress = progress
			err := r.jobs.Update(gctx, job)
			jobMu.Unlock()
			if err != nil {
				r.logger.Warn("job_progress_update_failed",
					slog.String("job_id", job.JobID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	// Workers only report page outcomes; they never return errors.
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Page < results[b].Page })

	title := ""
	for _, res := range results {
		if res.Outcome == parse.OutcomeParsed && res.Content.Title != "" {
			title = res.Content.Title
			break
		}
	}

	var chunks []*store.Chunk
	for _, res := range results {
		switch res.Outcome {
		case parse.OutcomeParsed:
			job.SuccessCount++
			chunks = append(chunks, BuildChunks(job.DocName, res.Page, res.Content, title, "")...)
		case parse.OutcomeSkipped:
			job.SkipCount++
		case parse.OutcomeFailed:
			job.FailCount++
		}
	}

	if len(chunks) > 0 {
		indexer, err := r.tenantIndex(job.UID)
		if err != nil {
			return r.fail(ctx, job, askerr.StoreUnavailableError("tenant index", err))
		}
		if err := indexer.Add(ctx, chunks); err != nil {
			return r.fail(ctx, job, askerr.StoreUnavailableError("chunk persistence", err))
		}
	}

	if r.refresher != nil {
		if err := r.refresher.Refresh(ctx, job.UID); err != nil {
			r.logger.Warn("lexical_refresh_failed",
				slog.String("uid", job.UID),
				slog.String("error", err.Error()))
		}
	}

	job.Status = store.JobStatusCompleted
	job.Progress = 100
	job.Message = fmt.Sprintf("processed %d pages: %d indexed, %d skipped, %d failed",
		total, job.SuccessCount, job.SkipCount, job.FailCount)
	if err := r.jobs.Update(ctx, job); err != nil {
		return askerr.StoreUnavailableError("job store update", err)
	}

	r.logger.Info("ingestion_completed",
		slog.String("job_id", job.JobID),
		slog.String("doc", job.DocName),
		slog.Int("success", job.SuccessCount),
		slog.Int("skipped", job.SkipCount),
		slog.Int("failed", job.FailCount),
		slog.Int("chunks", len(chunks)))
	return nil
}

// fail drives the job to the failed status with the error as its message.
func (r *Runner) fail(ctx context.Context, job *store.IngestionJob, cause error) error {
	job.Status = store.JobStatusFailed
	job.Message = cause.Error()
	if err := r.jobs.Update(ctx, job); err != nil {
		r.logger.Error("job_fail_update_failed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
	}
	r.logger.Error("ingestion_failed",
		slog.String("job_id", job.JobID),
		slog.String("doc", job.DocName),
		slog.String("error", cause.Error()))
	return cause
}
