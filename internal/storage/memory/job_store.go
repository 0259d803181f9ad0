package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]lead.Job
	outcomes map[string]lead.JobOutcome
	now      func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:     make(map[string]lead.Job),
		outcomes: make(map[string]lead.JobOutcome),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job lead.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. Terminal jobs
// keep their status so a late worker write cannot resurrect a canceled job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status lead.JobStatus,
	errText string,
	counters lead.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	if job.Status.IsTerminal() && status != job.Status {
		job.Counters = counters
		s.jobs[jobID] = job
		return nil
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == lead.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (lead.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lead.Job{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	return job, nil
}

// RecordOutcome stores the leads and duplicates a job produced.
func (s *JobStore) RecordOutcome(_ context.Context, jobID string, outcome lead.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	s.outcomes[jobID] = lead.JobOutcome{
		LeadIDs:    append([]string(nil), outcome.LeadIDs...),
		Duplicates: append([]lead.Duplicate(nil), outcome.Duplicates...),
	}
	return nil
}

// GetOutcome returns the recorded outcome, or an empty one when the job has
// not finished yet.
func (s *JobStore) GetOutcome(_ context.Context, jobID string) (lead.JobOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return lead.JobOutcome{}, fmt.Errorf("job %s: %w", jobID, lead.ErrNotFound)
	}
	out := s.outcomes[jobID]
	return lead.JobOutcome{
		LeadIDs:    append([]string(nil), out.LeadIDs...),
		Duplicates: append([]lead.Duplicate(nil), out.Duplicates...),
	}, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
