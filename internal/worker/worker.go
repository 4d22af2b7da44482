// Package worker implements the page-visit pipeline and frontier control.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/lifecycle"
	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/telemetry"
)

// Config controls the crawl budget and per-step timeouts.
type Config struct {
	MaxDepth        int
	MaxPages        int
	RenderTimeout   time.Duration
	AnalysisTimeout time.Duration
}

// Worker consumes page tasks and executes the visit pipeline: render,
// extract links, screenshot, analyze, persist, then decide fan-out.
type Worker struct {
	queue       scan.Queue
	store       scan.Store
	visited     scan.VisitedStore
	renderer    scan.Renderer
	analyzer    scan.Analyzer
	screenshots scan.ScreenshotStore
	lifecycle   *lifecycle.Manager
	clock       scan.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker.
func New(
	queue scan.Queue,
	store scan.Store,
	visited scan.VisitedStore,
	renderer scan.Renderer,
	analyzer scan.Analyzer,
	screenshots scan.ScreenshotStore,
	lc *lifecycle.Manager,
	clock scan.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 120 * time.Second
	}
	return &Worker{
		queue:       queue,
		store:       store,
		visited:     visited,
		renderer:    renderer,
		analyzer:    analyzer,
		screenshots: screenshots,
		lifecycle:   lc,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued page task",
			zap.String("scan_id", task.ScanID),
			zap.String("url", task.TargetURL),
			zap.Int("depth", task.Depth),
		)
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task scan.PageTask) {
	result, err := w.visitPage(ctx, task)
	if err != nil {
		// Fatal errors were already routed to the lifecycle manager;
		// anything surfacing here is a logged, abandoned branch.
		w.logger.Warn("page task abandoned",
			zap.String("scan_id", task.ScanID),
			zap.String("url", task.TargetURL),
			zap.Error(err),
		)
		return
	}
	if result.Skipped {
		telemetry.PagesSkipped.WithLabelValues(string(result.SkipReason)).Inc()
		w.logger.Debug("page task skipped",
			zap.String("scan_id", task.ScanID),
			zap.String("url", task.TargetURL),
			zap.String("reason", string(result.SkipReason)),
		)
		if result.SkipReason != scan.SkipAlreadyVisited {
			return
		}
		// A duplicate task contributes no links of its own, but it still
		// owns a frontier decision: when pages link to each other, the
		// last tasks on the queue are all duplicates, and without this
		// pass no task ever observes the exhausted frontier.
	}
	w.decideFanOut(ctx, result)
}

// visitPage executes one page visit end-to-end, isolating each step's
// failure. Only a render failure on the initial page is scan-fatal.
func (w *Worker) visitPage(ctx context.Context, task scan.PageTask) (scan.PageResult, error) {
	if err := scan.ValidateTargetURL(task.TargetURL); err != nil {
		if task.Depth == 0 {
			_, _ = w.lifecycle.Fail(ctx, task.ScanID, fmt.Sprintf("The URL %s is not a valid http or https address.", task.TargetURL))
		}
		return scan.PageResult{}, fmt.Errorf("invalid target url: %w", err)
	}

	terminal, err := w.lifecycle.IsTerminal(ctx, task.ScanID)
	if err != nil {
		return scan.PageResult{}, err
	}
	if terminal {
		// A late-arriving task must not resurrect a finished scan.
		return scan.PageResult{Task: task, Skipped: true, SkipReason: scan.SkipTerminal}, nil
	}

	if _, err := w.lifecycle.Start(ctx, task.ScanID); err != nil {
		w.logger.Warn("mark scan running failed", zap.String("scan_id", task.ScanID), zap.Error(err))
	}

	if task.Depth > w.cfg.MaxDepth {
		return scan.PageResult{Task: task, Skipped: true, SkipReason: scan.SkipMaxDepth}, nil
	}

	// Claim the URL before rendering so concurrent tasks for the same
	// page cannot both proceed.
	normalized := scan.NormalizeURL(task.TargetURL)
	claimed, err := w.visited.MarkVisited(ctx, task.ScanID, normalized)
	if err != nil {
		return scan.PageResult{}, fmt.Errorf("mark visited: %w", err)
	}
	if !claimed {
		return scan.PageResult{Task: task, Skipped: true, SkipReason: scan.SkipAlreadyVisited}, nil
	}

	rendered, err := w.render(ctx, task.TargetURL)
	if err != nil {
		w.handleRenderFailure(ctx, task, err)
		return scan.PageResult{}, err
	}

	// Links come out before the render resource is released; a failed
	// extraction degrades to an empty list.
	links := scan.ExtractInternalLinks(rendered.HTML, rendered.URL, task.BaseURL)

	screenshotURL := w.uploadScreenshot(ctx, task, rendered.Screenshot)

	analysisCtx, cancel := context.WithTimeout(ctx, w.cfg.AnalysisTimeout)
	analysis := w.analyzer.Analyze(analysisCtx, rendered.Screenshot, task.TargetURL, rendered.Title)
	cancel()

	// A stop issued mid-render wins: no persistence, no children.
	terminal, err = w.lifecycle.IsTerminal(ctx, task.ScanID)
	if err != nil {
		return scan.PageResult{}, err
	}
	if terminal {
		return scan.PageResult{Task: task, Skipped: true, SkipReason: scan.SkipTerminal}, nil
	}

	w.persistPage(ctx, task, rendered, screenshotURL, analysis)

	return scan.PageResult{
		Task:          task,
		Title:         rendered.Title,
		ScreenshotURL: screenshotURL,
		Analysis:      analysis,
		Links:         links,
	}, nil
}

func (w *Worker) render(ctx context.Context, targetURL string) (scan.RenderResult, error) {
	renderCtx, cancel := context.WithTimeout(ctx, w.cfg.RenderTimeout)
	defer cancel()
	rendered, err := w.renderer.Render(renderCtx, targetURL)
	if err != nil {
		return scan.RenderResult{}, fmt.Errorf("render %s: %w", targetURL, err)
	}
	return rendered, nil
}

// handleRenderFailure classifies the error and decides scope: the initial
// page failing means the scan cannot make progress and is marked failed;
// any later page just logs a warning and the branch is abandoned.
func (w *Worker) handleRenderFailure(ctx context.Context, task scan.PageTask, renderErr error) {
	category, message := scan.ClassifyRenderError(renderErr, task.TargetURL)
	telemetry.RenderFailures.WithLabelValues(string(category)).Inc()

	if task.Depth == 0 {
		if _, err := w.lifecycle.Fail(ctx, task.ScanID, message); err != nil {
			w.logger.Error("mark scan failed", zap.String("scan_id", task.ScanID), zap.Error(err))
		}
		return
	}

	entry := scan.LogEntry{
		ScanID:    task.ScanID,
		Level:     scan.LogWarning,
		Message:   message,
		URLPath:   urlPath(task.TargetURL),
		CreatedAt: w.clock.Now(),
	}
	if err := w.store.InsertLog(ctx, entry); err != nil {
		w.logger.Warn("insert branch failure log", zap.String("scan_id", task.ScanID), zap.Error(err))
	}
}

// uploadScreenshot is best-effort; on failure the page keeps an empty
// screenshot reference.
func (w *Worker) uploadScreenshot(ctx context.Context, task scan.PageTask, shot []byte) string {
	if len(shot) == 0 {
		return ""
	}
	path := fmt.Sprintf("%s/%s/%d.png", task.ProjectID, task.ScanID, w.clock.Now().UnixMilli())
	publicURL, err := w.screenshots.Upload(ctx, path, shot)
	if err != nil {
		w.logger.Warn("screenshot upload failed",
			zap.String("scan_id", task.ScanID),
			zap.String("url", task.TargetURL),
			zap.Error(err),
		)
		return ""
	}
	return publicURL
}

// persistPage writes the log entry, the site map entry, and the counter
// increments. Persistence failures are logged and processing continues; a
// page that rendered is not retried because a write failed.
func (w *Worker) persistPage(
	ctx context.Context,
	task scan.PageTask,
	rendered scan.RenderResult,
	screenshotURL string,
	analysis scan.PageAnalysis,
) {
	now := w.clock.Now()

	message := "AI Analysis Result"
	if data, err := json.Marshal(analysis); err == nil {
		message = "AI Analysis Result: " + string(data)
	}
	logEntry := scan.LogEntry{
		ScanID:        task.ScanID,
		Level:         scan.LogInfo,
		Message:       message,
		URLPath:       urlPath(task.TargetURL),
		ScreenshotURL: screenshotURL,
		Analysis:      &analysis,
		CreatedAt:     now,
	}
	if err := w.store.InsertLog(ctx, logEntry); err != nil {
		w.logger.Error("insert scan log failed", zap.String("scan_id", task.ScanID), zap.Error(err))
	}

	entry := scan.SiteMapEntry{
		ScanID:    task.ScanID,
		URL:       scan.NormalizeURL(task.TargetURL),
		ParentURL: task.ParentURL,
		Depth:     task.Depth,
		PageTitle: rendered.Title,
		Status:    "scanned",
		CreatedAt: now,
	}
	if err := w.store.InsertSiteMapEntry(ctx, entry); err != nil {
		w.logger.Error("insert site map entry failed", zap.String("scan_id", task.ScanID), zap.Error(err))
	}

	if err := w.store.IncrementCounters(ctx, task.ScanID, 1, len(analysis.SuggestedTests)); err != nil {
		w.logger.Error("increment scan counters failed", zap.String("scan_id", task.ScanID), zap.Error(err))
	}
	telemetry.PagesScanned.Inc()
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
