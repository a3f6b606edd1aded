package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/store"
)

func TestQueueEnqueueCreatesPendingJob(t *testing.T) {
	runner, jobs := newTestRunner(t, &pageParser{}, &captureIndexer{}, nil)
	q := NewQueue(runner, jobs, 4, nil)

	job, err := q.Enqueue(context.Background(), "u1", "manual.pdf", "/nonexistent/manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.JobID)
}

func TestQueueWorkerDrivesJobToTerminalStatus(t *testing.T) {
	runner, jobs := newTestRunner(t, &pageParser{}, &captureIndexer{}, nil)
	q := NewQueue(runner, jobs, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 1)

	// The path does not exist, so the job must land on failed, never hang.
	job, err := q.Enqueue(ctx, "u1", "manual.pdf", "/nonexistent/manual.pdf")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		if got.Status == store.JobStatusFailed || got.Status == store.JobStatusCompleted {
			assert.Equal(t, store.JobStatusFailed, got.Status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
}

func TestQueueFullBufferRejectsWithoutBlocking(t *testing.T) {
	runner, jobs := newTestRunner(t, &pageParser{}, &captureIndexer{}, nil)
	q := NewQueue(runner, jobs, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, 1)
	// Stop the worker so the buffer stays occupied.
	cancel()
	time.Sleep(50 * time.Millisecond)

	first, err := q.Enqueue(context.Background(), "u1", "a.pdf", "/tmp/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusPending, first.Status)

	// The buffer holds one task and no worker drains it. The overflow job
	// must come back failed instead of wedging the caller.
	second, err := q.Enqueue(context.Background(), "u1", "b.pdf", "/tmp/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, second.Status)
	assert.Equal(t, "ingestion queue is full", second.Message)

	// Close must return promptly even with a task still buffered.
	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a full queue")
	}
}

func TestQueueCloseRejectsNewJobs(t *testing.T) {
	runner, jobs := newTestRunner(t, &pageParser{}, &captureIndexer{}, nil)
	q := NewQueue(runner, jobs, 4, nil)
	q.Close()

	job, err := q.Enqueue(context.Background(), "u1", "manual.pdf", "/tmp/manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusFailed, job.Status)
}
