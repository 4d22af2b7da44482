// Package telemetry exposes Prometheus collectors for the scan service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesScanned tracks pages that completed the pipeline and were persisted.
	PagesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitescan_pages_scanned_total",
		Help: "The total number of pages rendered, analyzed, and persisted.",
	})
	// PagesSkipped tracks tasks dropped before rendering, labeled by reason.
	PagesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescan_pages_skipped_total",
		Help: "The total number of page tasks skipped, labeled by reason.",
	}, []string{"reason"})
	// RenderFailures tracks render errors by classified category.
	RenderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescan_render_failures_total",
		Help: "The total number of page render failures, labeled by category.",
	}, []string{"category"})
	// AnalysisFallbacks counts analyzer failures that degraded to the fixed fallback.
	AnalysisFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitescan_analysis_fallbacks_total",
		Help: "The total number of page analyses that fell back to the default result.",
	})
	// ScansFinished counts scans reaching a terminal state, labeled by status.
	ScansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescan_scans_finished_total",
		Help: "The total number of scans reaching a terminal state, labeled by status.",
	}, []string{"status"})
	// TasksEnqueued counts child page tasks created by the frontier.
	TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitescan_tasks_enqueued_total",
		Help: "The total number of child page tasks enqueued.",
	})
	// HTTPRequestDuration observes API request latency by method, route, and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitescan_http_request_duration_seconds",
		Help:    "Histogram of HTTP request latencies, labeled by method, route, and status.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route", "status"})
)
