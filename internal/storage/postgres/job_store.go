package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// JobStore persists discovery jobs and their outcomes.
type JobStore struct {
	pool pool
	now  func() time.Time
}

var _ lead.JobStore = (*JobStore)(nil)

// NewJobStore wraps an open pool.
func NewJobStore(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateJob inserts a queued job.
func (s *JobStore) CreateJob(ctx context.Context, job lead.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	counters, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO discovery_jobs (id, status, submitted_at, parameters, counters)
VALUES ($1, $2, $3, $4, $5)`, job.ID, string(job.Status), job.Submitted, params, counters)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job forward. Terminal rows keep their status and
// error text; counters are always refreshed.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status lead.JobStatus,
	errText string,
	counters lead.JobCounters,
) error {
	payload, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE discovery_jobs SET
	status = CASE WHEN status IN ('succeeded', 'failed', 'canceled') THEN status ELSE $2 END,
	error_text = CASE WHEN status IN ('succeeded', 'failed', 'canceled') THEN error_text ELSE $3 END,
	counters = $4,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $5 ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('succeeded', 'failed', 'canceled') AND finished_at IS NULL THEN $5 ELSE finished_at END
WHERE id = $1`, jobID, string(status), errText, payload, s.now())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (lead.Job, error) {
	var (
		job      lead.Job
		status   string
		params   []byte
		counters []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT id, status, submitted_at, started_at, finished_at, error_text, parameters, counters
FROM discovery_jobs WHERE id = $1`, jobID).Scan(
		&job.ID, &status, &job.Submitted, &job.Started, &job.Finished, &job.ErrorText, &params, &counters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.Job{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
		}
		return lead.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = lead.JobStatus(status)
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return lead.Job{}, fmt.Errorf("decode parameters: %w", err)
	}
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &job.Counters); err != nil {
			return lead.Job{}, fmt.Errorf("decode counters: %w", err)
		}
	}
	return job, nil
}

// RecordOutcome stores the created lead IDs and skipped duplicates.
func (s *JobStore) RecordOutcome(ctx context.Context, jobID string, outcome lead.JobOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE discovery_jobs SET outcome = $2 WHERE id = $1`, jobID, payload)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	return nil
}

// GetOutcome returns the stored outcome; jobs still running yield an empty one.
func (s *JobStore) GetOutcome(ctx context.Context, jobID string) (lead.JobOutcome, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT outcome FROM discovery_jobs WHERE id = $1`, jobID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.JobOutcome{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
		}
		return lead.JobOutcome{}, fmt.Errorf("get outcome: %w", err)
	}
	var out lead.JobOutcome
	if len(payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return lead.JobOutcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	return out, nil
}
