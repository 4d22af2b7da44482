// Package dispatcher runs the crawl worker pool against the shared
// page-task queue and is the enqueue entry point for new scans.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   scan.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue scan.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue hands the initial page task of a new scan to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task scan.PageTask) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
