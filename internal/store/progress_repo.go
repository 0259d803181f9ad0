// Package store declares interfaces for persisting job progress.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("progress record not found")

// JobRunStatus mirrors the job_runs status column.
type JobRunStatus string

// Job run statuses persisted in job_runs.status.
const (
	RunRunning JobRunStatus = "running"
	RunSuccess JobRunStatus = "success"
	RunError   JobRunStatus = "error"
)

// ParseRunStatus validates a status filter.
func ParseRunStatus(raw string) (JobRunStatus, bool) {
	switch s := JobRunStatus(raw); s {
	case RunRunning, RunSuccess, RunError:
		return s, true
	default:
		return "", false
	}
}

// JobRun models the job_runs table for API responses.
type JobRun struct {
	JobID        uuid.UUID
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       JobRunStatus
	ErrorMessage *string
}

// SourceStats aggregates what one search provider contributed to a job.
type SourceStats struct {
	JobID      uuid.UUID
	Source     string
	LastUpdate time.Time
	Results    int64
	Analyzed   int64
	Failed     int64
	Duplicates int64
	Created    int64
	BytesTotal int64
	// ScoreTotal sums successful scores; divide by Analyzed for the mean.
	ScoreTotal int64
}

// AverageScore returns the mean website score, or 0 when nothing was analyzed.
func (s SourceStats) AverageScore() float64 {
	if s.Analyzed == 0 {
		return 0
	}
	return float64(s.ScoreTotal) / float64(s.Analyzed)
}

// SourceDelta is an increment applied to a SourceStats row.
type SourceDelta struct {
	Results    int64
	Analyzed   int64
	Failed     int64
	Duplicates int64
	Created    int64
	Bytes      int64
	Score      int64
}

// IsZero reports whether applying d changes nothing.
func (d SourceDelta) IsZero() bool {
	return d == SourceDelta{}
}

// ProgressRepository persists incremental job progress.
type ProgressRepository interface {
	// UpsertJobStart inserts (or idempotently updates) the started_at timestamp.
	UpsertJobStart(ctx context.Context, jobID uuid.UUID, startedAt time.Time) error
	// CompleteJob marks the run finished with the provided status and error.
	CompleteJob(ctx context.Context, jobID uuid.UUID, finishedAt time.Time, status JobRunStatus, errMsg *string) error
	// UpsertSourceStats adds delta to the (job, source) row.
	UpsertSourceStats(ctx context.Context, jobID uuid.UUID, source string, delta SourceDelta, at time.Time) error

	GetJob(ctx context.Context, jobID uuid.UUID) (JobRun, error)
	// ListJobs returns job runs filtered by optional status plus limit/offset.
	ListJobs(ctx context.Context, status *JobRunStatus, limit, offset int) ([]JobRun, error)
	ListJobSources(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]SourceStats, error)
}
