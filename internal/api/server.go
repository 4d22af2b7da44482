// Package api exposes the HTTP interface for the scan service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/probelab/sitescan/internal/dispatcher"
	"github.com/probelab/sitescan/internal/lifecycle"
	"github.com/probelab/sitescan/internal/scan"
	"github.com/probelab/sitescan/internal/telemetry"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	store      scan.Store
	dispatcher *dispatcher.Dispatcher
	lifecycle  *lifecycle.Manager
	idGen      scan.IDGenerator
	clock      scan.Clock
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store scan.Store,
	dsp *dispatcher.Dispatcher,
	lc *lifecycle.Manager,
	idGen scan.IDGenerator,
	clock scan.Clock,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:      store,
		dispatcher: dsp,
		lifecycle:  lc,
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.createScan)
			r.Route("/{scan_id}", func(r chi.Router) {
				r.Get("/", s.getScan)
				r.Get("/logs", s.getLogs)
				r.Get("/sitemap", s.getSiteMap)
				r.Post("/stop", s.stopScan)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createScanRequest struct {
	ProjectID string `json:"project_id"`
	BaseURL   string `json:"base_url"`
}

type createScanResponse struct {
	Scan scan.Scan `json:"scan"`
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if err := scan.ValidateTargetURL(req.BaseURL); err != nil {
		writeError(w, http.StatusBadRequest, "base_url must be a valid http or https URL")
		return
	}

	scanID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not generate scan id")
		return
	}

	sc := scan.Scan{
		ID:        scanID,
		ProjectID: req.ProjectID,
		Status:    scan.StatusQueued,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateScan(r.Context(), sc); err != nil {
		s.logger.Error("create scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create scan")
		return
	}

	task := scan.PageTask{
		ScanID:    scanID,
		ProjectID: req.ProjectID,
		BaseURL:   req.BaseURL,
		TargetURL: req.BaseURL,
		Depth:     0,
	}
	if err := s.dispatcher.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("enqueue initial task failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not enqueue scan")
		return
	}

	writeJSON(w, http.StatusAccepted, createScanResponse{Scan: sc})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScan(r.Context(), chi.URLParam(r, "scan_id"))
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load scan")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	if _, err := s.store.GetScan(r.Context(), scanID); err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load scan")
		return
	}
	logs, err := s.store.ListLogs(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load logs")
		return
	}
	if logs == nil {
		logs = []scan.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) getSiteMap(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	if _, err := s.store.GetScan(r.Context(), scanID); err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load scan")
		return
	}
	entries, err := s.store.ListSiteMap(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load site map")
		return
	}
	if entries == nil {
		entries = []scan.SiteMapEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) stopScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lifecycle.Stop(r.Context(), chi.URLParam(r, "scan_id"))
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not stop scan")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panic",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
