// Package gateway exposes the HTTP and WebSocket interface for the audit
// service.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/audit"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/run"
)

// Defaults applied to POST /runs requests that omit the fields.
const (
	DefaultMaxPages    = 100
	DefaultConcurrency = 1
)

// RunnerFactory builds a validated runner for the given options. Validation
// failures surface as 400 responses.
type RunnerFactory func(opts audit.RunOptions) (*run.Runner, error)

// Server wires HTTP handlers to the run queue and registry.
type Server struct {
	router    chi.Router
	registry  *run.Registry
	queue     *run.Queue
	newRunner RunnerFactory
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(registry *run.Registry, queue *run.Queue, newRunner RunnerFactory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:  registry,
		queue:     queue,
		newRunner: newRunner,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/summary", s.getRunSummary)
			r.Get("/events", s.runEvents)
			r.Get("/reports/*", s.serveReport)
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
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRunRequest struct {
	BaseURL              string   `json:"baseUrl"`
	MaxPages             *int     `json:"maxPages"`
	Concurrency          *int     `json:"concurrency"`
	IncludePatterns      []string `json:"includePatterns"`
	ExcludePatterns      []string `json:"excludePatterns"`
	IncludeQueryPatterns []string `json:"includeQueryPatterns"`
	RequestsPerSecond    *float64 `json:"requestsPerSecond"`
	RenderJS             *bool    `json:"renderJs"`
	ForceAuditNonHTML    *bool    `json:"forceAuditNonHtml"`
	DistDir              string   `json:"distDir"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.BaseURL == "" {
		s.writeError(w, http.StatusBadRequest, "baseUrl is required")
		return
	}
	opts := audit.RunOptions{
		BaseURL:              req.BaseURL,
		MaxPages:             valueOrDefault(req.MaxPages, DefaultMaxPages),
		Concurrency:          valueOrDefault(req.Concurrency, DefaultConcurrency),
		IncludePatterns:      req.IncludePatterns,
		ExcludePatterns:      req.ExcludePatterns,
		IncludeQueryPatterns: req.IncludeQueryPatterns,
		RequestsPerSecond:    valueOrDefault(req.RequestsPerSecond, 0),
		RenderJS:             valueOrDefault(req.RenderJS, false),
		ForceAuditNonHTML:    valueOrDefault(req.ForceAuditNonHTML, false),
		DistDir:              req.DistDir,
	}

	runner, err := s.newRunner(opts)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.queue.Enqueue(runner); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("run accepted",
		zap.String("run_id", runner.ID()),
		zap.String("base_url", opts.BaseURL),
	)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"runId": runner.ID()})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	metas, err := s.registry.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": metas})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")
	// Live runners have fresher state than the last persisted snapshot.
	if runner, ok := s.queue.Live(id); ok {
		s.writeJSON(w, http.StatusOK, runner.Meta())
		return
	}
	meta, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to read run")
		return
	}
	s.writeJSON(w, http.StatusOK, meta)
}

func (s *Server) getRunSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")
	summary, err := s.registry.GetSummary(id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "summary not available")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to read summary")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// serveReport serves the static report blobs beneath a run's reports dir.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")
	runDir, err := s.registry.RunDir(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	rel := chi.URLParam(r, "*")
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}
	http.ServeFile(w, r, filepath.Join(runDir, run.ReportsDirName, clean))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
