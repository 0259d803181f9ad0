package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/leadscout/internal/store"
)

// ProgressStore implements store.ProgressRepository in memory.
type ProgressStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]store.JobRun
	sources map[uuid.UUID]map[string]store.SourceStats
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore constructs an empty ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		runs:    make(map[uuid.UUID]store.JobRun),
		sources: make(map[uuid.UUID]map[string]store.SourceStats),
	}
}

// UpsertJobStart records the start of a run; repeated calls are no-ops.
func (s *ProgressStore) UpsertJobStart(_ context.Context, jobID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[jobID]; ok {
		return nil
	}
	s.runs[jobID] = store.JobRun{JobID: jobID, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// CompleteJob sets the terminal status of a run.
func (s *ProgressStore) CompleteJob(
	_ context.Context,
	jobID uuid.UUID,
	finishedAt time.Time,
	status store.JobRunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[jobID] = run
	return nil
}

// UpsertSourceStats adds delta to the (job, source) aggregate.
func (s *ProgressStore) UpsertSourceStats(
	_ context.Context,
	jobID uuid.UUID,
	source string,
	delta store.SourceDelta,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySource := s.sources[jobID]
	if bySource == nil {
		bySource = make(map[string]store.SourceStats)
		s.sources[jobID] = bySource
	}
	stats := bySource[source]
	stats.JobID = jobID
	stats.Source = source
	stats.Results += delta.Results
	stats.Analyzed += delta.Analyzed
	stats.Failed += delta.Failed
	stats.Duplicates += delta.Duplicates
	stats.Created += delta.Created
	stats.BytesTotal += delta.Bytes
	stats.ScoreTotal += delta.Score
	if at.After(stats.LastUpdate) {
		stats.LastUpdate = at
	}
	bySource[source] = stats
	return nil
}

// GetJob returns a single run.
func (s *ProgressStore) GetJob(_ context.Context, jobID uuid.UUID) (store.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[jobID]
	if !ok {
		return store.JobRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListJobs returns runs newest first.
func (s *ProgressStore) ListJobs(
	_ context.Context,
	status *store.JobRunStatus,
	limit, offset int,
) ([]store.JobRun, error) {
	s.mu.RLock()
	runs := make([]store.JobRun, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return page(runs, limit, offset), nil
}

// ListJobSources returns per-source stats, most recently updated first.
func (s *ProgressStore) ListJobSources(
	_ context.Context,
	jobID uuid.UUID,
	limit, offset int,
) ([]store.SourceStats, error) {
	s.mu.RLock()
	stats := make([]store.SourceStats, 0, len(s.sources[jobID]))
	for _, st := range s.sources[jobID] {
		stats = append(stats, st)
	}
	s.mu.RUnlock()
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].LastUpdate.Equal(stats[j].LastUpdate) {
			return stats[i].Source < stats[j].Source
		}
		return stats[i].LastUpdate.After(stats[j].LastUpdate)
	})
	return page(stats, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
