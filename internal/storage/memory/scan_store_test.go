package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probelab/sitescan/internal/scan"
)

func TestScanStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()

	sc := scan.Scan{ID: "scan-1", ProjectID: "proj-1", Status: scan.StatusQueued, CreatedAt: time.Unix(100, 0)}
	require.NoError(t, store.CreateScan(ctx, sc))

	got, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, sc, got)

	_, err = store.GetScan(ctx, "missing")
	require.ErrorIs(t, err, scan.ErrNotFound)
}

func TestScanStore_UpdateStatusTransitions(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "scan-1", Status: scan.StatusQueued}))

	started := time.Unix(200, 0)
	sc, err := store.UpdateStatus(ctx, "scan-1", scan.StatusRunning, started)
	require.NoError(t, err)
	require.Equal(t, scan.StatusRunning, sc.Status)
	require.NotNil(t, sc.StartedAt)
	require.Equal(t, started, *sc.StartedAt)

	// Repeated start keeps the original timestamp.
	sc, err = store.UpdateStatus(ctx, "scan-1", scan.StatusRunning, time.Unix(300, 0))
	require.NoError(t, err)
	require.Equal(t, started, *sc.StartedAt)

	completed := time.Unix(400, 0)
	sc, err = store.UpdateStatus(ctx, "scan-1", scan.StatusCompleted, completed)
	require.NoError(t, err)
	require.Equal(t, scan.StatusCompleted, sc.Status)
	require.NotNil(t, sc.CompletedAt)
	require.Equal(t, completed, *sc.CompletedAt)
}

func TestScanStore_TerminalStatesAreAbsorbing(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "scan-1", Status: scan.StatusQueued}))

	_, err := store.UpdateStatus(ctx, "scan-1", scan.StatusStopped, time.Unix(200, 0))
	require.NoError(t, err)

	for _, next := range []scan.Status{scan.StatusRunning, scan.StatusCompleted, scan.StatusFailed} {
		sc, err := store.UpdateStatus(ctx, "scan-1", next, time.Unix(300, 0))
		require.NoError(t, err)
		require.Equal(t, scan.StatusStopped, sc.Status)
	}
}

func TestScanStore_IncrementCounters(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "scan-1"}))

	require.NoError(t, store.IncrementCounters(ctx, "scan-1", 1, 3))
	require.NoError(t, store.IncrementCounters(ctx, "scan-1", 1, 0))

	sc, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, 2, sc.TotalPagesScanned)
	require.Equal(t, 3, sc.TotalBugsFound)

	require.ErrorIs(t, store.IncrementCounters(ctx, "missing", 1, 0), scan.ErrNotFound)
}

func TestScanStore_SiteMapDeduplicatesByURL(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()

	entry := scan.SiteMapEntry{ScanID: "scan-1", URL: "https://example.com/a", Depth: 1}
	require.NoError(t, store.InsertSiteMapEntry(ctx, entry))
	require.NoError(t, store.InsertSiteMapEntry(ctx, entry))

	count, err := store.CountSiteMapEntries(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestScanStore_ListOrderedByCreation(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()

	require.NoError(t, store.InsertSiteMapEntry(ctx, scan.SiteMapEntry{
		ScanID: "scan-1", URL: "https://example.com/b", CreatedAt: time.Unix(200, 0),
	}))
	require.NoError(t, store.InsertSiteMapEntry(ctx, scan.SiteMapEntry{
		ScanID: "scan-1", URL: "https://example.com/a", CreatedAt: time.Unix(100, 0),
	}))

	entries, err := store.ListSiteMap(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "https://example.com/a", entries[0].URL)

	require.NoError(t, store.InsertLog(ctx, scan.LogEntry{
		ScanID: "scan-1", Message: "second", CreatedAt: time.Unix(200, 0),
	}))
	require.NoError(t, store.InsertLog(ctx, scan.LogEntry{
		ScanID: "scan-1", Message: "first", CreatedAt: time.Unix(100, 0),
	}))

	logs, err := store.ListLogs(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "first", logs[0].Message)
}

func TestScanStore_ListStale(t *testing.T) {
	t.Parallel()

	store := NewScanStore()
	ctx := context.Background()

	old := time.Unix(100, 0)
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "stale-queued", Status: scan.StatusQueued, CreatedAt: old}))
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "stale-running", Status: scan.StatusRunning, CreatedAt: old, StartedAt: &old}))
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "done", Status: scan.StatusCompleted, CreatedAt: old}))
	fresh := time.Unix(900, 0)
	require.NoError(t, store.CreateScan(ctx, scan.Scan{ID: "fresh", Status: scan.StatusRunning, CreatedAt: fresh, StartedAt: &fresh}))

	stale, err := store.ListStale(ctx, time.Unix(500, 0))
	require.NoError(t, err)

	ids := make(map[string]bool, len(stale))
	for _, sc := range stale {
		ids[sc.ID] = true
	}
	require.Len(t, stale, 2)
	require.True(t, ids["stale-queued"])
	require.True(t, ids["stale-running"])
}
