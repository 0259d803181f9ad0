package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/discovery"
	"github.com/JakeFAU/leadscout/internal/id/uuid"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/progress"
	"github.com/JakeFAU/leadscout/internal/worker"
)

// Discover runs one discovery job in the foreground and returns its result.
// The job is persisted like an API-submitted one so it shows up in the
// configured store afterwards.
func (a *App) Discover(ctx context.Context, params lead.DiscoveryParams) (lead.JobResult, error) {
	jobID, err := uuid.New().NewID()
	if err != nil {
		return lead.JobResult{}, fmt.Errorf("generate job id: %w", err)
	}
	clock := system.New()
	if err := a.jobs.CreateJob(ctx, lead.Job{
		ID:         jobID,
		Status:     lead.JobStatusQueued,
		Submitted:  clock.Now(),
		Parameters: params,
	}); err != nil {
		return lead.JobResult{}, fmt.Errorf("create job: %w", err)
	}

	var emitter progress.Emitter = progress.Nop
	if a.progressHub != nil {
		emitter = a.progressHub
	}
	w := worker.New(a.queue, a.jobs, a.pipeline, clock, emitter,
		worker.Config{JobTimeout: a.cfg.JobTimeout()},
		a.logger.Named("worker").With(zap.String("mode", "foreground")),
	)
	start := time.Now()
	w.Process(ctx, lead.QueueItem{JobID: jobID, Params: params, Attempt: 1, Submitted: start.Unix()})

	result, err := discovery.LoadResult(context.WithoutCancel(ctx), a.jobs, a.leads, jobID)
	if err != nil {
		return lead.JobResult{}, err
	}
	a.logger.Info("foreground discovery finished",
		zap.String("job_id", jobID),
		zap.String("status", string(result.Job.Status)),
		zap.Duration("dur", time.Since(start)),
	)
	return result, nil
}
