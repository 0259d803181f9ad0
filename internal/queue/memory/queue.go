// Package memory provides the bounded in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = lead.ErrQueueFull
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = lead.ErrQueueClosed
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan lead.QueueItem
	mu     sync.RWMutex
	closed bool
}

var _ lead.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan lead.QueueItem, capacity),
	}
}

// Enqueue pushes a job without blocking; a full queue yields ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, job lead.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (lead.QueueItem, error) {
	select {
	case <-ctx.Done():
		return lead.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return lead.QueueItem{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
