// Package lifecycle owns the scan status state machine.
//
// The Manager is the only component that transitions scan status. All
// transitions are monotonic: queued -> running -> {completed, failed,
// stopped}, and terminal states absorb every later request.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/telemetry"
)

// Manager transitions scan status and coordinates stop requests.
type Manager struct {
	store   scan.Store
	queue   scan.Queue
	visited scan.VisitedStore
	clock   scan.Clock
	logger  *zap.Logger
}

// New constructs a Manager.
func New(
	store scan.Store,
	queue scan.Queue,
	visited scan.VisitedStore,
	clock scan.Clock,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:   store,
		queue:   queue,
		visited: visited,
		clock:   clock,
		logger:  logger,
	}
}

// Start flips a queued scan to running. Repeated calls while already
// running are no-ops.
func (m *Manager) Start(ctx context.Context, scanID string) (scan.Scan, error) {
	sc, err := m.store.UpdateStatus(ctx, scanID, scan.StatusRunning, m.clock.Now())
	if err != nil {
		return scan.Scan{}, fmt.Errorf("start scan: %w", err)
	}
	return sc, nil
}

// Complete finalizes a running scan. The reason records why the frontier
// was exhausted (max_pages or no further links).
func (m *Manager) Complete(ctx context.Context, scanID, reason string) (scan.Scan, error) {
	sc, err := m.store.UpdateStatus(ctx, scanID, scan.StatusCompleted, m.clock.Now())
	if err != nil {
		return scan.Scan{}, fmt.Errorf("complete scan: %w", err)
	}
	if sc.Status != scan.StatusCompleted {
		return sc, nil
	}
	telemetry.ScansFinished.WithLabelValues(string(scan.StatusCompleted)).Inc()
	m.logger.Info("scan completed",
		zap.String("scan_id", scanID),
		zap.String("reason", reason),
		zap.Int("pages", sc.TotalPagesScanned),
	)
	m.appendLog(ctx, scan.LogEntry{
		ScanID:    scanID,
		Level:     scan.LogInfo,
		Message:   fmt.Sprintf("Scan completed (%s): %d pages scanned", reason, sc.TotalPagesScanned),
		URLPath:   "/",
		CreatedAt: m.clock.Now(),
	})
	return sc, nil
}

// Fail marks a scan failed and records the classified error message.
// Only a fatal error on the initial page reaches this path.
func (m *Manager) Fail(ctx context.Context, scanID, message string) (scan.Scan, error) {
	sc, err := m.store.UpdateStatus(ctx, scanID, scan.StatusFailed, m.clock.Now())
	if err != nil {
		return scan.Scan{}, fmt.Errorf("fail scan: %w", err)
	}
	if sc.Status != scan.StatusFailed {
		return sc, nil
	}
	telemetry.ScansFinished.WithLabelValues(string(scan.StatusFailed)).Inc()
	m.appendLog(ctx, scan.LogEntry{
		ScanID:    scanID,
		Level:     scan.LogError,
		Message:   message,
		URLPath:   "/",
		CreatedAt: m.clock.Now(),
	})
	return sc, nil
}

// Stop cancels a scan on explicit request. Pending queue tasks for the
// scan are removed best-effort. Stopping a scan already in a terminal
// state is a no-op that reports the current status.
func (m *Manager) Stop(ctx context.Context, scanID string) (scan.Scan, error) {
	current, err := m.store.GetScan(ctx, scanID)
	if err != nil {
		return scan.Scan{}, fmt.Errorf("stop scan: %w", err)
	}
	if current.Status.Terminal() {
		return current, nil
	}

	sc, err := m.store.UpdateStatus(ctx, scanID, scan.StatusStopped, m.clock.Now())
	if err != nil {
		return scan.Scan{}, fmt.Errorf("stop scan: %w", err)
	}
	if sc.Status != scan.StatusStopped {
		// Lost the race with another terminal transition.
		return sc, nil
	}
	telemetry.ScansFinished.WithLabelValues(string(scan.StatusStopped)).Inc()

	removed, err := m.queue.CancelScan(ctx, scanID)
	if err != nil {
		m.logger.Warn("cancel pending tasks failed", zap.String("scan_id", scanID), zap.Error(err))
	}
	if err := m.visited.Clear(ctx, scanID); err != nil {
		m.logger.Warn("clear visited set failed", zap.String("scan_id", scanID), zap.Error(err))
	}

	m.logger.Info("scan stopped",
		zap.String("scan_id", scanID),
		zap.Int("tasks_removed", removed),
	)
	m.appendLog(ctx, scan.LogEntry{
		ScanID:    scanID,
		Level:     scan.LogInfo,
		Message:   "Scan stopped by user request",
		URLPath:   "/",
		CreatedAt: m.clock.Now(),
	})
	return sc, nil
}

// IsTerminal reports whether the scan may accept no further work.
func (m *Manager) IsTerminal(ctx context.Context, scanID string) (bool, error) {
	sc, err := m.store.GetScan(ctx, scanID)
	if err != nil {
		return false, fmt.Errorf("check scan status: %w", err)
	}
	return sc.Status.Terminal(), nil
}

func (m *Manager) appendLog(ctx context.Context, entry scan.LogEntry) {
	if err := m.store.InsertLog(ctx, entry); err != nil {
		m.logger.Warn("append scan log failed", zap.String("scan_id", entry.ScanID), zap.Error(err))
	}
}
