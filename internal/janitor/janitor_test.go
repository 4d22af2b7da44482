package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/lifecycle"
	queueMemory "github.com/probelab/sitescan/internal/queue/memory"
	"github.com/probelab/sitescan/internal/scan"
	storageMemory "github.com/probelab/sitescan/internal/storage/memory"
	visitedMemory "github.com/probelab/sitescan/internal/visited/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func TestJanitor_SweepFinalizesStuckScans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storageMemory.NewScanStore()
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	lc := lifecycle.New(store, queueMemory.NewQueue(4), visitedMemory.New(time.Hour), clock, zap.NewNop())

	old := clock.now.Add(-2 * time.Hour)
	fresh := clock.now.Add(-time.Minute)
	require.NoError(t, store.CreateScan(ctx, scan.Scan{
		ID: "stuck-running", Status: scan.StatusRunning, CreatedAt: old, StartedAt: &old,
	}))
	require.NoError(t, store.IncrementCounters(ctx, "stuck-running", 3, 0))
	require.NoError(t, store.CreateScan(ctx, scan.Scan{
		ID: "stuck-queued", Status: scan.StatusQueued, CreatedAt: old,
	}))
	require.NoError(t, store.CreateScan(ctx, scan.Scan{
		ID: "active", Status: scan.StatusRunning, CreatedAt: fresh, StartedAt: &fresh,
	}))
	require.NoError(t, store.CreateScan(ctx, scan.Scan{
		ID: "finished", Status: scan.StatusCompleted, CreatedAt: old,
	}))

	j := New(store, lc, clock, Config{StuckAfter: 30 * time.Minute}, zap.NewNop())
	j.Sweep(ctx)

	// A running scan already has pages, so it is closed out as completed.
	running, err := store.GetScan(ctx, "stuck-running")
	require.NoError(t, err)
	require.Equal(t, scan.StatusCompleted, running.Status)

	logs, err := store.ListLogs(ctx, "stuck-running")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, scan.LogInfo, logs[0].Level)
	require.Contains(t, logs[0].Message, "3 pages scanned")

	// A scan still queued never started and is failed.
	queued, err := store.GetScan(ctx, "stuck-queued")
	require.NoError(t, err)
	require.Equal(t, scan.StatusFailed, queued.Status)

	logs, err = store.ListLogs(ctx, "stuck-queued")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, scan.LogError, logs[0].Level)
	require.Contains(t, logs[0].Message, "timed out")

	active, err := store.GetScan(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, scan.StatusRunning, active.Status)

	finished, err := store.GetScan(ctx, "finished")
	require.NoError(t, err)
	require.Equal(t, scan.StatusCompleted, finished.Status)
}

func TestJanitor_SweepIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storageMemory.NewScanStore()
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	lc := lifecycle.New(store, queueMemory.NewQueue(4), visitedMemory.New(time.Hour), clock, zap.NewNop())

	old := clock.now.Add(-2 * time.Hour)
	require.NoError(t, store.CreateScan(ctx, scan.Scan{
		ID: "stuck", Status: scan.StatusQueued, CreatedAt: old,
	}))

	j := New(store, lc, clock, Config{StuckAfter: 30 * time.Minute}, zap.NewNop())
	j.Sweep(ctx)
	j.Sweep(ctx)

	logs, err := store.ListLogs(ctx, "stuck")
	require.NoError(t, err)
	require.Len(t, logs, 1)
}
