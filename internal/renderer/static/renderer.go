// Package static fetches pages without JavaScript using Colly. It serves
// environments where headless Chrome is unavailable; no screenshot is
// produced, so downstream analysis falls back to its default result.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/probelab/sitescan/internal/scan"
)

// Config controls the static fetcher.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Renderer implements scan.Renderer over plain HTTP.
type Renderer struct {
	base *colly.Collector
}

// New constructs a configured Colly-based Renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)
	return &Renderer{base: base}, nil
}

type fetchResult struct {
	body       []byte
	statusCode int
	err        error
}

// Render fetches the URL and derives the title from the HTML.
func (r *Renderer) Render(ctx context.Context, rawURL string) (scan.RenderResult, error) {
	collector := r.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(resp *colly.Response) {
		send(fetchResult{body: resp.Body, statusCode: resp.StatusCode})
	})
	collector.OnError(func(resp *colly.Response, err error) {
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return scan.RenderResult{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}

	go func() {
		collector.Wait()
		send(fetchResult{err: errors.New("no response received")})
	}()

	select {
	case <-ctx.Done():
		return scan.RenderResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return scan.RenderResult{}, fmt.Errorf("fetch %s: %w", rawURL, res.err)
		}
		if res.statusCode >= http.StatusBadRequest {
			return scan.RenderResult{}, fmt.Errorf("fetch %s: status %d", rawURL, res.statusCode)
		}
		return scan.RenderResult{
			URL:       rawURL,
			Title:     pageTitle(res.body),
			HTML:      res.body,
			FetchedAt: time.Now().UTC(),
		}, nil
	}
}

func pageTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Find("title").First().Text()
}
