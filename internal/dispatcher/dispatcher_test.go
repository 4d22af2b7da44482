package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	queueMemory "github.com/probelab/sitescan/internal/queue/memory"
	"github.com/probelab/sitescan/internal/scan"
)

func TestDispatcherEnqueueProxiesToQueue(t *testing.T) {
	t.Parallel()

	queue := queueMemory.NewQueue(4)
	d := New(queue, nil)

	require.NoError(t, d.Enqueue(context.Background(), scan.PageTask{
		ScanID:    "scan-1",
		TargetURL: "https://example.com",
	}))
	require.Equal(t, 1, queue.Len())
}

func TestDispatcherEnqueueWrapsQueueError(t *testing.T) {
	t.Parallel()

	queue := queueMemory.NewQueue(1)
	d := New(queue, nil)
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, scan.PageTask{ScanID: "scan-1"}))
	err := d.Enqueue(ctx, scan.PageTask{ScanID: "scan-1"})
	require.ErrorIs(t, err, queueMemory.ErrQueueFull)
}

func TestDispatcherRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	d := New(queueMemory.NewQueue(4), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
