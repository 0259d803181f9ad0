// Package dispatcher runs the discovery worker pool and accepts jobs for it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/worker"
)

const abandonedReason = "service shut down before the job started"

// Dispatcher owns the worker pool that drains the job queue.
type Dispatcher struct {
	queue   lead.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue lead.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run blocks until every worker has returned, which happens when ctx ends or
// the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() { w.Run(ctx) })
	}
	wg.Wait()
}

// Enqueue hands a job to the pool. It never blocks on a full queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item lead.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Abandon empties a closed queue after the workers have stopped and marks
// every job left in it as canceled, so nothing stays queued forever. It
// returns the abandoned job IDs.
func (d *Dispatcher) Abandon(ctx context.Context, jobs lead.JobStore) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for {
		item, err := d.queue.Dequeue(ctx)
		if errors.Is(err, lead.ErrQueueClosed) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("drain queue: %w", err))
			break
		}
		ids = append(ids, item.JobID)
		if err := jobs.UpdateJobStatus(ctx, item.JobID, lead.JobStatusCanceled, abandonedReason, lead.JobCounters{}); err != nil {
			errs = append(errs, fmt.Errorf("cancel job %s: %w", item.JobID, err))
		}
	}
	return ids, errors.Join(errs...)
}
