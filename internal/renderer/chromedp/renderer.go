// Package chromedp renders pages with headless Chrome via chromedp.
package chromedp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/scan"
)

// Config controls the behavior of the chromedp renderer.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Renderer implements scan.Renderer using one shared browser process.
// The browser is health-checked before each render and relaunched if it
// crashed, so a poisoned instance never serves further tasks.
type Renderer struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// New creates a Renderer and warms up the browser.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	r := &Renderer{cfg: cfg, logger: logger}
	if err := r.launch(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) launch() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	r.allocCtx = allocCtx
	r.allocCancel = allocCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel
	return nil
}

// ensureBrowser relaunches the browser when the shared context has died.
func (r *Renderer) ensureBrowser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	r.logger.Warn("browser crashed, relaunching")
	r.browserCancel()
	r.allocCancel()
	if err := r.launch(); err != nil {
		return nil, fmt.Errorf("relaunch browser: %w", err)
	}
	return r.browserCtx, nil
}

// Render navigates to the URL, waits for the body, and captures the
// title, the full-page screenshot, and the rendered HTML.
func (r *Renderer) Render(ctx context.Context, rawURL string) (scan.RenderResult, error) {
	browserCtx, err := r.ensureBrowser()
	if err != nil {
		return scan.RenderResult{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var (
		title      string
		html       string
		screenshot []byte
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		r.userAgentAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&screenshot, 90),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return scan.RenderResult{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return scan.RenderResult{}, fmt.Errorf("chromedp run: %w", err)
	}

	return scan.RenderResult{
		URL:        rawURL,
		Title:      title,
		HTML:       []byte(html),
		Screenshot: screenshot,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (r *Renderer) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if r.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// Close tears down the browser and allocator contexts.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.browserCancel()
	r.allocCancel()
}

// forwardCancel propagates cancellation of the caller's context into the
// chromedp task context, which descends from the browser context instead.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
