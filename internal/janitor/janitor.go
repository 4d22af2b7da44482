// Package janitor sweeps scans that stopped making progress.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/lifecycle"
	"github.com/probelab/sitescan/internal/scan"
)

// Completion reason recorded for running scans closed out by the sweep.
const reasonStuck = "stuck_timeout"

// Config controls the sweep cadence and the stuck cutoff.
type Config struct {
	Interval   time.Duration
	StuckAfter time.Duration
}

// Janitor periodically finalizes scans that have been queued or running
// longer than the cutoff. Crashed workers otherwise leave scans running
// forever, since completion only happens from inside the pipeline.
type Janitor struct {
	store     scan.Store
	lifecycle *lifecycle.Manager
	clock     scan.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Janitor.
func New(store scan.Store, lc *lifecycle.Manager, clock scan.Clock, cfg Config, logger *zap.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Minute
	}
	return &Janitor{
		store:     store,
		lifecycle: lc,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, sweeping on the configured interval until the context ends.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep finalizes every scan whose last activity predates the cutoff.
// A stuck running scan already produced pages, so it is closed out as
// completed; a scan stuck in queued never started and is failed.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.clock.Now().Add(-j.cfg.StuckAfter)
	stale, err := j.store.ListStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("list stale scans failed", zap.Error(err))
		return
	}
	for _, sc := range stale {
		j.logger.Warn("finalizing stuck scan",
			zap.String("scan_id", sc.ID),
			zap.String("status", string(sc.Status)),
		)
		if sc.Status == scan.StatusRunning {
			if _, err := j.lifecycle.Complete(ctx, sc.ID, reasonStuck); err != nil {
				j.logger.Error("complete stuck scan", zap.String("scan_id", sc.ID), zap.Error(err))
			}
			continue
		}
		if _, err := j.lifecycle.Fail(ctx, sc.ID, "Scan timed out before any page was processed."); err != nil {
			j.logger.Error("fail stuck scan", zap.String("scan_id", sc.ID), zap.Error(err))
		}
	}
}
