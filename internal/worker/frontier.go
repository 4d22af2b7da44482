package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/telemetry"
)

// Completion reasons recorded when a scan finishes.
const (
	reasonMaxPages          = "max_pages"
	reasonFrontierExhausted = "frontier_exhausted"
)

// decideFanOut is the frontier controller: after a successful page visit
// it either enqueues child tasks or declares the scan finished.
//
// The page count comes from the site map, not an in-memory counter, so
// the budget holds across workers. Completion is approximate: the scan is
// finalized when a task finds nothing new to add, which can race sibling
// tasks still in flight.
func (w *Worker) decideFanOut(ctx context.Context, result scan.PageResult) {
	task := result.Task

	count, err := w.store.CountSiteMapEntries(ctx, task.ScanID)
	if err != nil {
		w.logger.Error("count scanned pages failed", zap.String("scan_id", task.ScanID), zap.Error(err))
		return
	}
	if count >= w.cfg.MaxPages {
		if _, err := w.lifecycle.Complete(ctx, task.ScanID, reasonMaxPages); err != nil {
			w.logger.Error("complete scan failed", zap.String("scan_id", task.ScanID), zap.Error(err))
		}
		return
	}

	if len(result.Links) == 0 {
		// This task found nothing to add. There is no global frontier
		// signal, so treat it as exhaustion.
		if _, err := w.lifecycle.Complete(ctx, task.ScanID, reasonFrontierExhausted); err != nil {
			w.logger.Error("complete scan failed", zap.String("scan_id", task.ScanID), zap.Error(err))
		}
		return
	}

	childDepth := task.Depth + 1
	if childDepth > w.cfg.MaxDepth {
		// Children would exceed the depth budget. Other branches of the
		// frontier may still be active, so the scan is not finalized here.
		return
	}

	enqueued := 0
	for _, link := range result.Links {
		visited, err := w.visited.IsVisited(ctx, task.ScanID, link)
		if err != nil {
			w.logger.Warn("visited lookup failed", zap.String("scan_id", task.ScanID), zap.Error(err))
			continue
		}
		if visited {
			continue
		}
		child := scan.PageTask{
			ScanID:    task.ScanID,
			ProjectID: task.ProjectID,
			BaseURL:   task.BaseURL,
			TargetURL: link,
			Depth:     childDepth,
			ParentURL: task.TargetURL,
		}
		if err := w.queue.Enqueue(ctx, child); err != nil {
			w.logger.Warn("enqueue child task failed",
				zap.String("scan_id", task.ScanID),
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		telemetry.TasksEnqueued.Add(float64(enqueued))
	}
	w.logger.Debug("frontier expanded",
		zap.String("scan_id", task.ScanID),
		zap.String("parent", task.TargetURL),
		zap.Int("children", enqueued),
	)
}
