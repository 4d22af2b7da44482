package scan

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a scan does not exist.
var ErrNotFound = errors.New("scan not found")

// Store persists scans, site map entries, and scan logs.
type Store interface {
	CreateScan(ctx context.Context, s Scan) error
	GetScan(ctx context.Context, scanID string) (Scan, error)
	// UpdateStatus transitions a scan's status. Implementations must refuse
	// to overwrite a terminal status and report the stored row's state.
	UpdateStatus(ctx context.Context, scanID string, status Status, at time.Time) (Scan, error)
	// IncrementCounters adds the deltas atomically; callers never
	// read-modify-write the whole scan row.
	IncrementCounters(ctx context.Context, scanID string, pages, bugs int) error
	InsertSiteMapEntry(ctx context.Context, entry SiteMapEntry) error
	CountSiteMapEntries(ctx context.Context, scanID string) (int, error)
	ListSiteMap(ctx context.Context, scanID string) ([]SiteMapEntry, error)
	InsertLog(ctx context.Context, entry LogEntry) error
	ListLogs(ctx context.Context, scanID string) ([]LogEntry, error)
	// ListStale returns non-terminal scans whose last activity predates the cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]Scan, error)
}

// VisitedStore is the per-scan set of normalized URLs already claimed.
type VisitedStore interface {
	IsVisited(ctx context.Context, scanID, url string) (bool, error)
	// MarkVisited claims the URL for the scan. It returns true when this
	// call added the URL, false when it was already present; the add must
	// be atomic per key so two concurrent tasks cannot both claim.
	MarkVisited(ctx context.Context, scanID, url string) (bool, error)
	Visited(ctx context.Context, scanID string) ([]string, error)
	Clear(ctx context.Context, scanID string) error
}

// Renderer loads a URL in a browser and returns the rendered page.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderResult, error)
}

// Analyzer inspects a rendered page. Implementations apply their own
// timeout and never return an error; on failure they degrade to
// FallbackAnalysis.
type Analyzer interface {
	Analyze(ctx context.Context, screenshot []byte, url, pageTitle string) PageAnalysis
}

// ScreenshotStore writes screenshot bytes and returns a public URL.
type ScreenshotStore interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

// Queue delivers page tasks to workers.
type Queue interface {
	Enqueue(ctx context.Context, task PageTask) error
	Dequeue(ctx context.Context) (PageTask, error)
	// CancelScan best-effort removes pending tasks for the scan and
	// returns how many were dropped.
	CancelScan(ctx context.Context, scanID string) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
