// Package api exposes the operational HTTP surface: health and status,
// alert queries and resolution, recent logs, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/sched"
	"github.com/forestwatch/forestwatch/internal/store"
	"github.com/forestwatch/forestwatch/internal/version"
)

// AlertStore is the store surface the API reads and resolves through.
type AlertStore interface {
	QueryUnresolved(ctx context.Context, f store.UnresolvedFilter) ([]alert.Alert, error)
	Resolve(ctx context.Context, id, resolvedBy, notes string) (alert.Alert, error)
	CountAlerts(ctx context.Context) (store.AlertCounts, error)
}

// JobReporter exposes scheduler state for /status.
type JobReporter interface {
	Snapshot() []sched.JobStatus
}

// Server provides the HTTP API.
type Server struct {
	store     AlertStore
	jobs      JobReporter
	logBuffer *LogBuffer
	logger    zerolog.Logger
	startTime time.Time
	http      *http.Server
}

// NewServer creates the API server. logBuffer may be nil; /api/logs
// then returns an empty list.
func NewServer(st AlertStore, jobs JobReporter, logBuffer *LogBuffer, port string, logger zerolog.Logger) *Server {
	s := &Server{
		store:     st,
		jobs:      jobs,
		logBuffer: logBuffer,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/alerts/", s.handleResolve)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.http.Addr).Msg("starting api server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountAlerts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("counting alerts failed")
		http.Error(w, "alert store unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"time":              time.Now().UTC().Format(time.RFC3339),
		"uptime":            time.Since(s.startTime).String(),
		"version":           version.Full(),
		"alerts_unresolved": counts.Unresolved,
		"alerts_critical":   counts.Critical,
		"jobs":              s.jobs.Snapshot(),
	})
}

// handleAlerts lists unresolved alerts, optionally filtered by severity,
// category, notified flag, and a since timestamp (RFC 3339).
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var filter store.UnresolvedFilter

	q := r.URL.Query()
	if v := q.Get("severity"); v != "" {
		sev, err := alert.ParseSeverity(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Severity = &sev
	}
	if v := q.Get("category"); v != "" {
		cat, err := alert.ParseCategory(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Category = cat
	}
	if v := q.Get("notified"); v != "" {
		notified := v == "true"
		filter.Notified = &notified
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = since
	}

	alerts, err := s.store.QueryUnresolved(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("querying alerts failed")
		http.Error(w, "alert store unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

// handleResolve handles POST /alerts/{id}/resolve. Resolving an already
// resolved alert is idempotent and returns the original resolution.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/alerts/")
	id, action, found := strings.Cut(path, "/")
	if !found || action != "resolve" || id == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ResolvedBy == "" {
		http.Error(w, "resolved_by is required", http.StatusBadRequest)
		return
	}

	resolved, err := s.store.Resolve(r.Context(), id, req.ResolvedBy, req.Notes)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	case errors.Is(err, store.ErrAlreadyResolved):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"alert":            resolved,
			"already_resolved": true,
		})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("alert", id).Msg("resolving alert failed")
		http.Error(w, "alert store unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"alert": resolved})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var entries []LogEntry
	if s.logBuffer != nil {
		entries = s.logBuffer.Recent(200)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
