// Package pubsub provides a task queue backed by Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/scan"
)

// Config identifies the topic and subscription used for page tasks.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
	Buffer         int
}

// Queue publishes page tasks to a topic and consumes them from a
// subscription. Cancellation is best-effort: Pub/Sub cannot delete
// individual messages, so canceled scans are dropped at dequeue time.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	ch chan scan.PageTask

	mu       sync.Mutex
	canceled map[string]struct{}
}

// New creates a Queue and verifies the topic exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" || cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("pubsub project, topic, and subscription are required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	return &Queue{
		client:   client,
		topic:    topic,
		sub:      client.Subscription(cfg.SubscriptionID),
		logger:   logger,
		ch:       make(chan scan.PageTask, cfg.Buffer),
		canceled: make(map[string]struct{}),
	}, nil
}

// Start launches the subscription receiver. It blocks until the context
// finishes and should run in its own goroutine.
func (q *Queue) Start(ctx context.Context) error {
	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var task scan.PageTask
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			q.logger.Error("drop malformed task message", zap.Error(err))
			msg.Ack()
			return
		}
		if q.isCanceled(task.ScanID) {
			msg.Ack()
			return
		}
		select {
		case q.ch <- task:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Enqueue publishes a page task.
func (q *Queue) Enqueue(ctx context.Context, task scan.PageTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"scan_id": task.ScanID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue returns the next received task.
func (q *Queue) Dequeue(ctx context.Context) (scan.PageTask, error) {
	select {
	case <-ctx.Done():
		return scan.PageTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.ch:
		return task, nil
	}
}

// CancelScan marks the scan canceled so its remaining messages are dropped
// as they arrive. Pub/Sub offers no way to count or remove queued messages,
// so the removed count is always zero.
func (q *Queue) CancelScan(_ context.Context, scanID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled[scanID] = struct{}{}
	return 0, nil
}

func (q *Queue) isCanceled(scanID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.canceled[scanID]
	return ok
}

// Close stops the publisher and closes the client.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
