package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var _ lead.JobStore = (*Repository)(nil)

type dbJob struct {
	ID          string         `db:"id"`
	Status      string         `db:"status"`
	SubmittedAt time.Time      `db:"submitted_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	FinishedAt  sql.NullTime   `db:"finished_at"`
	ErrorText   string         `db:"error_text"`
	Parameters  string         `db:"parameters"`
	Counters    string         `db:"counters"`
	Outcome     sql.NullString `db:"outcome"`
}

// CreateJob inserts a queued job.
func (r *Repository) CreateJob(ctx context.Context, job lead.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	counters, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("marshalling counters: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO discovery_jobs (id, status, submitted_at, parameters, counters)
		VALUES (?, ?, ?, ?, ?)`, job.ID, string(job.Status), job.Submitted.UTC(), string(params), string(counters))
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJobStatus moves a job forward; terminal rows keep their status.
func (r *Repository) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status lead.JobStatus,
	errText string,
	counters lead.JobCounters,
) error {
	payload, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshalling counters: %w", err)
	}
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `UPDATE discovery_jobs SET
		error_text = CASE WHEN status IN ('succeeded', 'failed', 'canceled') THEN error_text ELSE ? END,
		status = CASE WHEN status IN ('succeeded', 'failed', 'canceled') THEN status ELSE ? END,
		counters = ?,
		started_at = CASE WHEN ? = 'running' AND started_at IS NULL THEN ? ELSE started_at END,
		finished_at = CASE WHEN ? IN ('succeeded', 'failed', 'canceled') AND finished_at IS NULL THEN ? ELSE finished_at END
	WHERE id = ?`,
		errText, string(status), string(payload), string(status), now, string(status), now, jobID)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return requireAffected(result, "job", jobID)
}

// GetJob loads a job by ID.
func (r *Repository) GetJob(ctx context.Context, jobID string) (lead.Job, error) {
	var row dbJob
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM discovery_jobs WHERE id = ?`, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lead.Job{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
		}
		return lead.Job{}, fmt.Errorf("getting job: %w", err)
	}
	job := lead.Job{
		ID:        row.ID,
		Status:    lead.JobStatus(row.Status),
		Submitted: row.SubmittedAt.UTC(),
		ErrorText: row.ErrorText,
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time.UTC()
		job.Started = &t
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time.UTC()
		job.Finished = &t
	}
	if err := json.Unmarshal([]byte(row.Parameters), &job.Parameters); err != nil {
		return lead.Job{}, fmt.Errorf("decoding parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Counters), &job.Counters); err != nil {
		return lead.Job{}, fmt.Errorf("decoding counters: %w", err)
	}
	return job, nil
}

// RecordOutcome stores what the job produced.
func (r *Repository) RecordOutcome(ctx context.Context, jobID string, outcome lead.JobOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshalling outcome: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE discovery_jobs SET outcome = ? WHERE id = ?`, string(payload), jobID)
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return requireAffected(result, "job", jobID)
}

// GetOutcome returns the stored outcome, empty while the job is running.
func (r *Repository) GetOutcome(ctx context.Context, jobID string) (lead.JobOutcome, error) {
	var raw sql.NullString
	if err := r.db.GetContext(ctx, &raw, `SELECT outcome FROM discovery_jobs WHERE id = ?`, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lead.JobOutcome{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
		}
		return lead.JobOutcome{}, fmt.Errorf("getting outcome: %w", err)
	}
	var out lead.JobOutcome
	if !raw.Valid || raw.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return lead.JobOutcome{}, fmt.Errorf("decoding outcome: %w", err)
	}
	return out, nil
}
