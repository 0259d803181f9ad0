// Package worker implements the discovery job execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/discovery"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/logging"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/progress"
)

const finalizeTimeout = 10 * time.Second

// Runner executes one discovery job.
type Runner interface {
	Run(ctx context.Context, jobID string, params lead.DiscoveryParams) (discovery.Report, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single job; zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs the discovery pipeline for each.
type Worker struct {
	queue    lead.Queue
	jobStore lead.JobStore
	runner   Runner
	clock    lead.Clock
	progress progress.Emitter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue lead.Queue,
	jobStore lead.JobStore,
	runner Runner,
	clock lead.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if clock == nil {
		clock = system.New()
	}
	if emitter == nil {
		emitter = progress.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		jobStore: jobStore,
		runner:   runner,
		clock:    clock,
		progress: emitter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if errors.Is(err, lead.ErrQueueClosed) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

// Process runs one item synchronously, outside the queue loop.
func (w *Worker) Process(ctx context.Context, item lead.QueueItem) {
	w.processJob(ctx, item)
}

func (w *Worker) processJob(ctx context.Context, item lead.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	logger := logging.ForJob(w.logger, item.JobID)

	if job, err := w.jobStore.GetJob(ctx, item.JobID); err == nil && job.Status.IsTerminal() {
		logger.Info("skipping job already finished", zap.String("status", string(job.Status)))
		return
	}

	start := w.clock.Now()
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, lead.JobStatusRunning, "", lead.JobCounters{}); err != nil {
		logger.Error("mark job running", zap.Error(err))
		return
	}
	w.emit(item.JobID, progress.StageJobStart, 0, "")

	jobCtx, cancel := w.jobContext(ctx)
	rep, runErr := w.runner.Run(jobCtx, item.JobID, item.Params)
	status, errText := deriveFinalStatus(ctx, jobCtx, rep, runErr)
	cancel()

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()
	if err := w.jobStore.RecordOutcome(finalCtx, item.JobID, rep.Outcome); err != nil {
		logger.Error("record job outcome", zap.Error(err))
	}
	if err := w.jobStore.UpdateJobStatus(finalCtx, item.JobID, status, errText, rep.Counters); err != nil {
		logger.Error("update final job status", zap.Error(err))
	}

	dur := w.clock.Now().Sub(start)
	if status == lead.JobStatusSucceeded {
		w.emit(item.JobID, progress.StageJobDone, dur, "")
	} else {
		note := errText
		if note == "" {
			note = string(status)
		}
		w.emit(item.JobID, progress.StageJobError, dur, note)
	}
	metrics.ObserveJob(string(status))
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("created", rep.Counters.Created),
		zap.Int("duplicates", rep.Counters.Duplicates),
		zap.Duration("dur", dur),
	)
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// deriveFinalStatus maps a run to its terminal status. A run that stopped
// early, or whose context ended, is canceled; a run error is a failure.
func deriveFinalStatus(parent, jobCtx context.Context, rep discovery.Report, runErr error) (lead.JobStatus, string) {
	switch {
	case parent.Err() != nil:
		return lead.JobStatusCanceled, "worker shutting down"
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return lead.JobStatusCanceled, "job timeout exceeded"
	case rep.Canceled:
		return lead.JobStatusCanceled, ""
	case runErr != nil:
		return lead.JobStatusFailed, runErr.Error()
	default:
		return lead.JobStatusSucceeded, ""
	}
}

func (w *Worker) emit(jobID string, stage progress.Stage, dur time.Duration, note string) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.progress.Emit(progress.Event{
		JobID: progress.UUIDToBytes(id),
		TS:    w.clock.Now(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}
