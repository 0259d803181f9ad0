package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/leadscout/internal/store"
)

// ProgressStore implements the store.ProgressRepository interface using Postgres.
type ProgressStore struct {
	pool pool
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore wraps an open pool.
func NewProgressStore(p pool) (*ProgressStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{pool: p}, nil
}

// UpsertJobStart inserts a running row; a repeated start leaves the original timestamp.
func (s *ProgressStore) UpsertJobStart(ctx context.Context, jobID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO job_runs (job_id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, jobID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to upsert job start: %w", err)
	}
	return nil
}

// CompleteJob marks a job as completed with a status and optional error message.
func (s *ProgressStore) CompleteJob(
	ctx context.Context,
	jobID uuid.UUID,
	finishedAt time.Time,
	status store.JobRunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE job_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE job_id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertSourceStats adds delta to the per-source counters for a job.
func (s *ProgressStore) UpsertSourceStats(
	ctx context.Context,
	jobID uuid.UUID,
	source string,
	delta store.SourceDelta,
	at time.Time,
) error {
	query := `
		INSERT INTO source_stats (job_id, source, last_update, results, analyzed, failed, duplicates, created, bytes_total, score_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id, source) DO UPDATE SET
			last_update = GREATEST(source_stats.last_update, EXCLUDED.last_update),
			results = source_stats.results + EXCLUDED.results,
			analyzed = source_stats.analyzed + EXCLUDED.analyzed,
			failed = source_stats.failed + EXCLUDED.failed,
			duplicates = source_stats.duplicates + EXCLUDED.duplicates,
			created = source_stats.created + EXCLUDED.created,
			bytes_total = source_stats.bytes_total + EXCLUDED.bytes_total,
			score_total = source_stats.score_total + EXCLUDED.score_total;
	`
	_, err := s.pool.Exec(ctx, query,
		jobID, source, at,
		delta.Results, delta.Analyzed, delta.Failed, delta.Duplicates, delta.Created, delta.Bytes, delta.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert source stats: %w", err)
	}
	return nil
}

// GetJob retrieves a single job run by its ID.
func (s *ProgressStore) GetJob(ctx context.Context, jobID uuid.UUID) (store.JobRun, error) {
	query := `
		SELECT job_id, started_at, finished_at, status, error_message
		FROM job_runs
		WHERE job_id = $1;
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.JobRun{}, store.ErrNotFound
		}
		return store.JobRun{}, fmt.Errorf("failed to get job: %w", err)
	}
	return run, nil
}

// ListJobs retrieves a list of job runs, with optional status filtering.
func (s *ProgressStore) ListJobs(
	ctx context.Context,
	status *store.JobRunStatus,
	limit,
	offset int,
) ([]store.JobRun, error) {
	query := `
		SELECT job_id, started_at, finished_at, status, error_message
		FROM job_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	runs := make([]store.JobRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return runs, nil
}

// ListJobSources retrieves aggregated per-source statistics for a given job.
func (s *ProgressStore) ListJobSources(
	ctx context.Context,
	jobID uuid.UUID,
	limit,
	offset int,
) ([]store.SourceStats, error) {
	query := `
		SELECT job_id, source, last_update, results, analyzed, failed, duplicates, created, bytes_total, score_total
		FROM source_stats
		WHERE job_id = $1
		ORDER BY last_update DESC, source
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list job sources: %w", err)
	}
	defer rows.Close()

	stats := make([]store.SourceStats, 0)
	for rows.Next() {
		var stat store.SourceStats
		err := rows.Scan(
			&stat.JobID,
			&stat.Source,
			&stat.LastUpdate,
			&stat.Results,
			&stat.Analyzed,
			&stat.Failed,
			&stat.Duplicates,
			&stat.Created,
			&stat.BytesTotal,
			&stat.ScoreTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source stats: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.JobRun, error) {
	var (
		run    store.JobRun
		status string
	)
	if err := row.Scan(&run.JobID, &run.StartedAt, &run.FinishedAt, &status, &run.ErrorMessage); err != nil {
		return store.JobRun{}, err
	}
	run.Status = store.JobRunStatus(status)
	return run, nil
}
