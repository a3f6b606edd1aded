package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// SQLiteJobStore persists ingestion job records in SQLite.
// Polling callers always see a definitive status; progress writes come from
// many concurrent page tasks and are serialized by the database.
type SQLiteJobStore struct {
	db *sql.DB
}

var _ JobStore = (*SQLiteJobStore)(nil)

const jobSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id        TEXT PRIMARY KEY,
	uid           TEXT NOT NULL,
	doc_name      TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	total_pages   INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	skip_count    INTEGER NOT NULL DEFAULT 0,
	fail_count    INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_uid ON jobs(uid, created_at);
`

// NewSQLiteJobStore opens (creating if needed) a job store at path.
// An empty path creates an in-memory store for testing.
func NewSQLiteJobStore(path string) (*SQLiteJobStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(jobSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job schema: %w", err)
	}
	return &SQLiteJobStore{db: db}, nil
}

// Create inserts a new job record. CreatedAt/UpdatedAt are set here.
func (s *SQLiteJobStore) Create(ctx context.Context, job *IngestionJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, uid, doc_name, status, progress, total_pages,
			success_count, skip_count, fail_count, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.UID, job.DocName, string(job.Status), job.Progress,
		job.TotalPages, job.SuccessCount, job.SkipCount, job.FailCount,
		job.Message, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return askerr.StoreUnavailableError("create job", err)
	}
	return nil
}

// Get returns the job record for jobID, or an error if it does not exist.
func (s *SQLiteJobStore) Get(ctx context.Context, jobID string) (*IngestionJob, error) {
	job := &IngestionJob{}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, uid, doc_name, status, progress, total_pages,
			success_count, skip_count, fail_count, message, created_at, updated_at
		FROM jobs WHERE job_id = ?`, jobID).Scan(
		&job.JobID, &job.UID, &job.DocName, &status, &job.Progress,
		&job.TotalPages, &job.SuccessCount, &job.SkipCount, &job.FailCount,
		&job.Message, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return nil, askerr.StoreUnavailableError("get job", err)
	}
	job.Status = JobStatus(status)
	return job, nil
}

// Update persists the mutable fields of a job record.
func (s *SQLiteJobStore) Update(ctx context.Context, job *IngestionJob) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, total_pages = ?,
			success_count = ?, skip_count = ?, fail_count = ?, message = ?,
			updated_at = ?
		WHERE job_id = ?`,
		string(job.Status), job.Progress, job.TotalPages, job.SuccessCount,
		job.SkipCount, job.FailCount, job.Message, job.UpdatedAt, job.JobID)
	if err != nil {
		return askerr.StoreUnavailableError("update job", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("job %s not found", job.JobID)
	}
	return nil
}

// List returns a tenant's jobs, most recent first.
func (s *SQLiteJobStore) List(ctx context.Context, uid string) ([]*IngestionJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, uid, doc_name, status, progress, total_pages,
			success_count, skip_count, fail_count, message, created_at, updated_at
		FROM jobs WHERE uid = ? ORDER BY created_at DESC`, uid)
	if err != nil {
		return nil, askerr.StoreUnavailableError("list jobs", err)
	}
	defer rows.Close()

	var jobs []*IngestionJob
	for rows.Next() {
		job := &IngestionJob{}
		var status string
		if err := rows.Scan(&job.JobID, &job.UID, &job.DocName, &status,
			&job.Progress, &job.TotalPages, &job.SuccessCount, &job.SkipCount,
			&job.FailCount, &job.Message, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		job.Status = JobStatus(status)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}
