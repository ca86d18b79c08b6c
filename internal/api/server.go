// Package api provides the local observability HTTP server: snapshot
// retrieval, live status, manual recovery triggers, and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/events"
	"github.com/hugo-lorenzo-mato/vigil/internal/memory"
	"github.com/hugo-lorenzo-mato/vigil/internal/snapshot"
	"github.com/hugo-lorenzo-mato/vigil/internal/taskctl"
	"github.com/hugo-lorenzo-mato/vigil/internal/watchdog"
)

// Server exposes the resilience core over HTTP.
type Server struct {
	router    chi.Router
	snapshots *snapshot.Store
	watchdog  *watchdog.Watchdog
	memory    *memory.Monitor
	tasks     *taskctl.Controller
	bus       *events.Bus
	logger    *slog.Logger
	origins   []string
	started   time.Time
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// NewServer creates a new observability server. Any component may be nil;
// its endpoints then answer 503.
func NewServer(snapshots *snapshot.Store, wd *watchdog.Watchdog, mem *memory.Monitor, tasks *taskctl.Controller, bus *events.Bus, opts ...ServerOption) *Server {
	s := &Server{
		snapshots: snapshots,
		watchdog:  wd,
		memory:    mem,
		tasks:     tasks,
		bus:       bus,
		logger:    slog.Default(),
		origins:   []string{"*"},
		started:   time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Get("/latest", s.handleLatestSnapshot)
			r.Get("/last-session", s.handleLastSessionSnapshots)
			r.Delete("/", s.handleClearSnapshots)
		})

		r.Post("/recovery/trigger", s.handleTriggerRecovery)
		r.Post("/memory/cleanup", s.handleMemoryCleanup)

		r.Get("/events", s.handleSSE)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is the live view of the resilience core.
type statusResponse struct {
	Watchdog struct {
		Running bool   `json:"running"`
		Level   string `json:"level"`
	} `json:"watchdog"`
	Memory struct {
		Running      bool   `json:"running"`
		Level        string `json:"level"`
		Degraded     bool   `json:"degraded"`
		Usage        string `json:"usage"`
		WarningCount int64  `json:"warning_count"`
	} `json:"memory"`
	Tasks struct {
		Active    int      `json:"active"`
		ActiveIDs []string `json:"active_ids"`
		Submitted int64    `json:"submitted"`
		Cancelled int64    `json:"cancelled"`
		Failed    int64    `json:"failed"`
	} `json:"tasks"`
	Snapshots     int   `json:"snapshots"`
	EventsDropped int64 `json:"events_dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var resp statusResponse
	if s.watchdog != nil {
		resp.Watchdog.Running = s.watchdog.IsRunning()
		resp.Watchdog.Level = s.watchdog.CurrentLevel().String()
	}
	if s.memory != nil {
		resp.Memory.Running = s.memory.IsRunning()
		resp.Memory.Level = s.memory.CurrentLevel().String()
		resp.Memory.Degraded = s.memory.IsDegraded()
		resp.Memory.Usage = s.memory.FormatUsage()
		resp.Memory.WarningCount = s.memory.WarningCount()
	}
	if s.tasks != nil {
		resp.Tasks.Active = s.tasks.ActiveCount()
		resp.Tasks.ActiveIDs = s.tasks.ActiveIDs()
		stats := s.tasks.Stats()
		resp.Tasks.Submitted = stats.Submitted
		resp.Tasks.Cancelled = stats.Cancelled
		resp.Tasks.Failed = stats.Failed
	}
	if s.snapshots != nil {
		if n, err := s.snapshots.Count(); err == nil {
			resp.Snapshots = n
		}
	}
	if s.bus != nil {
		resp.EventsDropped = s.bus.DroppedCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}
	snaps, err := s.snapshots.LoadAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}
	snap, err := s.snapshots.LoadLatest()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshots) {
			respondError(w, http.StatusNotFound, "no snapshots recorded")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLastSessionSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}
	k := 5
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}
	snaps, err := s.snapshots.LoadLastSession(k)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

func (s *Server) handleClearSnapshots(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot store not available")
		return
	}
	if err := s.snapshots.ClearAll(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleTriggerRecovery(w http.ResponseWriter, r *http.Request) {
	if s.watchdog == nil {
		respondError(w, http.StatusServiceUnavailable, "watchdog not available")
		return
	}
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	level, err := core.ParseRecoveryLevel(req.Level)
	if err != nil || level == core.RecoveryNone {
		respondError(w, http.StatusBadRequest, "level must be one of: snapshot, cancel_tasks, reset_state")
		return
	}
	s.watchdog.TriggerRecovery(r.Context(), level)
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "triggered",
		"level":  level.String(),
	})
}

func (s *Server) handleMemoryCleanup(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "memory monitor not available")
		return
	}
	s.memory.PerformCleanup(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleanup performed"})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}
