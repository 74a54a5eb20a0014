// Package memory provides a bounded in-memory task queue for single
// process deployments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"course-catalog/internal/catalog"
)

// ErrClosed is returned by Enqueue and Dequeue after the queue shuts down.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
// Shutdown is signaled through a separate done channel so that a late
// Enqueue returns ErrClosed instead of panicking on a closed channel.
type Queue struct {
	ch        chan catalog.TaskItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan catalog.TaskItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
// A full queue blocks until a worker drains it or the context expires,
// which lets callers decide to fall back to inline execution. A closed
// queue returns ErrClosed so the same fallback applies during shutdown.
func (q *Queue) Enqueue(ctx context.Context, item catalog.TaskItem) error {
	select {
	case <-q.done:
		return fmt.Errorf("enqueue rejected: %w", ErrClosed)
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return fmt.Errorf("enqueue rejected: %w", ErrClosed)
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. After
// Close it drains any buffered items before reporting ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (catalog.TaskItem, error) {
	select {
	case <-ctx.Done():
		return catalog.TaskItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return catalog.TaskItem{}, ErrClosed
		}
	}
}

// Close marks the queue as shut down. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
