// Package memory provides a task queue implementation for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/probelab/sitescan/internal/scan"
)

// ErrQueueFull is returned when the queue's capacity is exhausted.
var ErrQueueFull = errors.New("queue full")

// Queue is a bounded in-memory task queue with per-scan cancellation.
type Queue struct {
	mu       sync.Mutex
	tasks    []scan.PageTask
	capacity int
	notify   chan struct{}
	done     chan struct{}
	closed   bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue pushes a task into the queue.
func (q *Queue) Enqueue(ctx context.Context, task scan.PageTask) error {
	if ctx.Err() != nil {
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the next task, blocking until one arrives or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (scan.PageTask, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			remaining := len(q.tasks)
			q.mu.Unlock()
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return task, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return scan.PageTask{}, errors.New("queue closed")
		}

		select {
		case <-ctx.Done():
			return scan.PageTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.done:
			return scan.PageTask{}, errors.New("queue closed")
		case <-q.notify:
		}
	}
}

// CancelScan removes every pending task for the scan and returns the count.
func (q *Queue) CancelScan(_ context.Context, scanID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.tasks[:0]
	removed := 0
	for _, task := range q.tasks {
		if task.ScanID == scanID {
			removed++
			continue
		}
		kept = append(kept, task)
	}
	q.tasks = kept
	return removed, nil
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close marks the queue closed and wakes blocked consumers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
