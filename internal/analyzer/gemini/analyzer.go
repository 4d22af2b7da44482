// Package gemini analyzes rendered pages with the Gemini vision API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/telemetry"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// Config controls the Gemini client.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
}

// Analyzer implements scan.Analyzer against the Gemini REST API.
// Analysis is always best-effort: every failure path returns the fixed
// fallback result, never an error.
type Analyzer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs an Analyzer. An empty API key disables remote analysis;
// Analyze then always returns the fallback.
func New(cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.APIKey == "" {
		logger.Warn("analyzer api key not set, remote analysis disabled")
	}
	return &Analyzer{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the screenshot and page context to Gemini and parses the
// structured result. The caller's context bounds the call.
func (a *Analyzer) Analyze(ctx context.Context, screenshot []byte, url, pageTitle string) scan.PageAnalysis {
	if a.cfg.APIKey == "" || len(screenshot) == 0 {
		telemetry.AnalysisFallbacks.Inc()
		return scan.FallbackAnalysis(pageTitle)
	}

	analysis, err := a.call(ctx, screenshot, url, pageTitle)
	if err != nil {
		telemetry.AnalysisFallbacks.Inc()
		a.logger.Warn("page analysis failed, using fallback",
			zap.String("url", url),
			zap.Error(err),
		)
		return scan.FallbackAnalysis(pageTitle)
	}
	return analysis
}

func (a *Analyzer) call(ctx context.Context, screenshot []byte, url, pageTitle string) (scan.PageAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze this webpage screenshot from %s (title: %q).

Provide a JSON response with:
1. pageType: (e.g., "login", "homepage", "search", "form", "content")
2. summary: Brief description of the page
3. forms: Array of detected forms with {type, fields[], action}
4. suggestedTests: Array of test ideas (SQL injection, XSS, edge cases)

Return ONLY valid JSON, no markdown.`, url, pageTitle)

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(screenshot),
				}},
			},
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.cfg.Endpoint, a.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("call analyzer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return scan.PageAnalysis{}, fmt.Errorf("analyzer status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("read response: %w", err)
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("decode response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return scan.PageAnalysis{}, fmt.Errorf("empty analyzer response")
	}

	return parseAnalysis(gen.Candidates[0].Content.Parts[0].Text)
}

// parseAnalysis pulls the first JSON object out of the model's reply,
// tolerating markdown fences around it.
func parseAnalysis(text string) (scan.PageAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return scan.PageAnalysis{}, fmt.Errorf("no JSON object in analyzer reply")
	}
	var analysis scan.PageAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return scan.PageAnalysis{}, fmt.Errorf("parse analysis JSON: %w", err)
	}
	return analysis, nil
}
