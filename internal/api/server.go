// Package api is the HTTP shell over the session orchestrator and the report
// store. Validation runs asynchronously; callers poll status and fetch the
// report once the session reaches a terminal state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/validation.report/internal/config"
	"github.com/banshee-data/validation.report/internal/httputil"
	"github.com/banshee-data/validation.report/internal/monitoring"
	"github.com/banshee-data/validation.report/internal/security"
	"github.com/banshee-data/validation.report/internal/version"
	"github.com/banshee-data/validation.report/internal/vru"
	"github.com/banshee-data/validation.report/internal/vru/align"
	"github.com/banshee-data/validation.report/internal/vru/session"
	"github.com/banshee-data/validation.report/internal/vru/storage/sqlite"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server handles the HTTP interface for validation sessions.
type Server struct {
	address      string
	orchestrator *session.Orchestrator
	events       *sqlite.EventStore
	reports      *sqlite.ReportStore
	tuning       *config.TuningConfig
	latencyDebug http.Handler
	server       *http.Server
}

// ServerConfig contains configuration options for the API server.
type ServerConfig struct {
	Address      string
	Orchestrator *session.Orchestrator
	Events       *sqlite.EventStore
	Reports      *sqlite.ReportStore
	Tuning       *config.TuningConfig
	LatencyDebug http.Handler // optional diagnostics page, mounted at /debug/latency
}

// NewServer creates a new API server with the provided configuration.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		address:      cfg.Address,
		orchestrator: cfg.Orchestrator,
		events:       cfg.Events,
		reports:      cfg.Reports,
		tuning:       cfg.Tuning,
		latencyDebug: cfg.LatencyDebug,
	}
	if s.tuning == nil {
		s.tuning = config.EmptyTuningConfig()
	}

	s.server = &http.Server{
		Addr:    s.address,
		Handler: LoggingMiddleware(s.ServeMux()),
	}

	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux configures the HTTP routes and handlers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleListSessions)
	mux.HandleFunc("/api/sessions/validate", s.handleValidate)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/reports", s.handleListReports)
	mux.HandleFunc("/api/profiles", s.handleListProfiles)
	if s.latencyDebug != nil {
		mux.Handle("/debug/latency", s.latencyDebug)
	}
	return mux
}

// Start begins the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("[API] listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("[API] server error: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("[API] shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httputil.WriteJSON(w, status, v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// ValidateRequest is the body of POST /api/sessions/validate. Omitted fields
// fall back to the server's tuning config.
type ValidateRequest struct {
	SessionID   string  `json:"session_id"`
	Method      string  `json:"method,omitempty"`
	ToleranceMs float64 `json:"tolerance_ms,omitempty"`
	Profile     string  `json:"profile,omitempty"`
}

// handleValidate starts an asynchronous validation session.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	if req.Method == "" {
		req.Method = s.tuning.GetAlignmentMethod()
	}
	method, err := align.ParseMethod(req.Method)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ToleranceMs == 0 {
		req.ToleranceMs = s.tuning.GetToleranceMs()
	}
	if req.ToleranceMs <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "tolerance_ms must be positive")
		return
	}
	if req.Profile == "" {
		req.Profile = s.tuning.GetProfile()
	}
	crit, err := config.Profile(req.Profile)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The session outlives the request; detach from the request context.
	go func() {
		report, err := s.orchestrator.ValidateSession(context.Background(), req.SessionID, method, crit, req.ToleranceMs)
		if err != nil {
			monitoring.Logf("[API] validation of session %s did not complete: %v", req.SessionID, err)
			return
		}
		if s.reports != nil {
			if _, err := s.reports.Insert(context.Background(), report); err != nil {
				monitoring.Logf("[API] persisting report for session %s: %v", req.SessionID, err)
			}
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": req.SessionID,
		"state":      string(vru.SessionPending),
		"method":     string(method),
		"profile":    req.Profile,
	})
}

// parseSessionPath extracts session_id and action from
// /api/sessions/{session_id}/{action}.
func parseSessionPath(path string) (sessionID string, action string) {
	trimmed := strings.TrimPrefix(path, "/api/sessions/")
	if trimmed == path {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 {
		return "", ""
	}
	sessionID = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	return
}

// handleSessionByID handles /api/sessions/{session_id}/* routes.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	sessionID, action := parseSessionPath(r.URL.Path)
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing session_id in path")
		return
	}

	switch action {
	case "status":
		if r.Method != http.MethodGet {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleStatus(w, r, sessionID)
	case "cancel":
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleCancel(w, r, sessionID)
	case "report":
		if r.Method != http.MethodGet {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleReport(w, r, sessionID)
	case "export":
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleExport(w, r, sessionID)
	default:
		s.writeJSONError(w, http.StatusNotFound, "endpoint not found")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	status, err := s.orchestrator.SessionStatus(sessionID)
	if err != nil {
		if errors.Is(err, vru.ErrSessionNotFound) {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, sessionID string) {
	cancelled := s.orchestrator.CancelSession(sessionID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cancelled":  cancelled,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.reports == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "report store not configured")
		return
	}
	stored, err := s.reports.Latest(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, vru.ErrSessionNotFound) {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stored)
}

// ExportRequest is the body of POST /api/sessions/{id}/export. Path is
// optional; the default is report-<session>.json in the working directory.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// handleExport writes the session's latest report to a JSON file on the
// server. The target path must stay within the working directory or the
// system temp directory.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.reports == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "report store not configured")
		return
	}

	var req ExportRequest
	if r.Body != nil {
		// An empty body means default path; anything else must parse.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	outPath := req.Path
	if outPath == "" {
		outPath = fmt.Sprintf("report-%s.json", security.SanitizeFilename(sessionID))
	}
	cleanPath := filepath.Clean(outPath)
	if err := security.ValidateExportPath(cleanPath); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid export path: %v", err))
		return
	}

	stored, err := s.reports.Latest(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, vru.ErrSessionNotFound) {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	blob, err := json.MarshalIndent(stored.Report, "", "  ")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "encode report: "+err.Error())
		return
	}
	if err := os.WriteFile(cleanPath, blob, 0o644); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "write report: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"report_id":  stored.ReportID,
		"path":       cleanPath,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.events == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	sessions, err := s.events.Sessions(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.reports == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "report store not configured")
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	listings, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if listings == nil {
		listings = []sqlite.ReportListing{}
	}
	s.writeJSON(w, http.StatusOK, listings)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, config.ProfileNames())
}
