// Package maintenance runs scheduled background jobs: parsed-page cache
// cleanup and snapshot mirroring to the blob store.
package maintenance

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on standard five-field cron expressions.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *slog.Logger
	ctx     context.Context
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// AddJob schedules job at spec. An empty spec disables the job.
func (s *Scheduler) AddJob(job Job, spec string) error {
	if spec == "" {
		return nil
	}
	entryID, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		return err
	}
	s.entries[job.Name()] = entryID
	s.logger.Info("maintenance_job_scheduled",
		slog.String("job", job.Name()),
		slog.String("spec", spec))
	return nil
}

// Start begins running scheduled jobs. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
}

// wrap serializes runs of a single job and logs its outcome.
func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Warn("maintenance_job_skipped",
				slog.String("job", job.Name()),
				slog.String("reason", "still running"))
			return
		}
		defer running.Store(false)

		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			s.logger.Error("maintenance_job_failed",
				slog.String("job", job.Name()),
				slog.String("spec", spec),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("maintenance_job_finished",
			slog.String("job", job.Name()),
			slog.Duration("duration", elapsed))
	}
}
