// Package scan defines the core types and interfaces for the site scanning engine.
package scan

import (
	"time"
)

// Status represents the lifecycle state of a scan.
type Status string

// Scan status values persisted in the scan store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Scan is the metadata persisted for one crawl run of a project.
type Scan struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	Status            Status     `json:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	TotalPagesScanned int        `json:"total_pages_scanned"`
	TotalBugsFound    int        `json:"total_bugs_found"`
	CreatedAt         time.Time  `json:"created_at"`
}

// PageTask is one unit of crawl work: visit TargetURL at Depth on behalf of ScanID.
type PageTask struct {
	ScanID    string `json:"scan_id"`
	ProjectID string `json:"project_id"`
	BaseURL   string `json:"base_url"`
	TargetURL string `json:"target_url"`
	Depth     int    `json:"depth"`
	ParentURL string `json:"parent_url,omitempty"`
}

// SiteMapEntry records one successfully rendered page. Append-only.
type SiteMapEntry struct {
	ScanID    string    `json:"scan_id"`
	URL       string    `json:"url"`
	ParentURL string    `json:"parent_url,omitempty"`
	Depth     int       `json:"depth"`
	PageTitle string    `json:"page_title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// LogLevel classifies scan log entries for operator display.
type LogLevel string

// Log levels recognized by the scan log stream.
const (
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

// LogEntry is an append-only audit record for a scan. Never mutated after creation.
type LogEntry struct {
	ScanID        string        `json:"scan_id"`
	Level         LogLevel      `json:"log_level"`
	Message       string        `json:"message"`
	URLPath       string        `json:"url_path"`
	ScreenshotURL string        `json:"screenshot_url,omitempty"`
	Analysis      *PageAnalysis `json:"analysis,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// FormDetection describes one form found on an analyzed page.
type FormDetection struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
	Action string   `json:"action,omitempty"`
}

// PageAnalysis is the structured result of the page analysis step.
type PageAnalysis struct {
	PageType       string          `json:"pageType"`
	Summary        string          `json:"summary"`
	Forms          []FormDetection `json:"forms"`
	SuggestedTests []string        `json:"suggestedTests"`
}

// RenderResult is what a Renderer produces for one page.
type RenderResult struct {
	URL        string
	Title      string
	HTML       []byte
	Screenshot []byte
	FetchedAt  time.Time
}

// SkipReason explains why the pipeline declined to process a task.
type SkipReason string

// Skip reasons reported by the page pipeline.
const (
	SkipMaxDepth       SkipReason = "max_depth"
	SkipAlreadyVisited SkipReason = "already_visited"
	SkipTerminal       SkipReason = "scan_terminal"
)

// PageResult is the pipeline's output for one task, handed to the frontier.
type PageResult struct {
	Task          PageTask
	Skipped       bool
	SkipReason    SkipReason
	Title         string
	ScreenshotURL string
	Analysis      PageAnalysis
	Links         []string
}

// FallbackAnalysis is the fixed analysis substituted when the analyzer
// fails or times out. Analysis is always best-effort.
func FallbackAnalysis(pageTitle string) PageAnalysis {
	return PageAnalysis{
		PageType: "unknown",
		Summary:  "Page: " + pageTitle,
		Forms:    []FormDetection{},
		SuggestedTests: []string{
			"Manual inspection required",
			"Check for broken links",
			"Verify page loads correctly",
		},
	}
}
