package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdoc/askdoc/internal/store"
)

// DefaultQueueSize bounds the number of queued jobs.
const DefaultQueueSize = 64

// task is one queued job descriptor.
type task struct {
	job  *store.IngestionJob
	path string
}

// Queue decouples upload requests from ingestion execution: the caller
// enqueues a job descriptor and polls the job store; a worker goroutine
// consumes the queue and runs each job to completion. Started jobs are not
// cancellable.
type Queue struct {
	runner *Runner
	jobs   store.JobStore
	tasks  chan task
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a job queue with the given capacity.
func NewQueue(runner *Runner, jobs store.JobStore, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		runner: runner,
		jobs:   jobs,
		tasks:  make(chan task, size),
		logger: logger,
	}
}

// Start launches n worker goroutines consuming the queue.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			// Run to completion even when the server is shutting down;
			// a half-ingested document would leave a stale job record.
			if err := q.runner.Run(context.WithoutCancel(ctx), t.job, t.path); err != nil {
				q.logger.Error("queued_job_failed",
					slog.String("job_id", t.job.JobID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Enqueue creates a pending job record for the document at path and queues
// it for processing, returning the job for status polling. When the queue is
// full or shut down the job is returned already marked failed.
func (q *Queue) Enqueue(ctx context.Context, uid, docName, path string) (*store.IngestionJob, error) {
	job := &store.IngestionJob{
		JobID:     uuid.NewString(),
		UID:       uid,
		DocName:   docName,
		Status:    store.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		job.Status = store.JobStatusFailed
		job.Message = "ingestion queue is shut down"
		_ = q.jobs.Update(ctx, job)
		return job, nil
	}
	// Never block while holding q.mu: a full buffer with no live workers
	// would otherwise deadlock against Close. A full queue rejects the job
	// instead; the caller can resubmit once workers drain the backlog.
	select {
	case q.tasks <- task{job: job, path: path}:
	default:
		job.Status = store.JobStatusFailed
		job.Message = "ingestion queue is full"
		_ = q.jobs.Update(ctx, job)
		q.logger.Warn("job_rejected_queue_full",
			slog.String("job_id", job.JobID),
			slog.String("uid", uid))
		return job, nil
	}

	q.logger.Info("job_enqueued",
		slog.String("job_id", job.JobID),
		slog.String("uid", uid),
		slog.String("doc", docName))
	return job, nil
}

// Close stops accepting jobs and waits for in-flight jobs to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}
