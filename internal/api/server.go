// Package api exposes the control plane's observability surface over HTTP:
// lane occupancy, recovery history, escalation analytics, cache stats, host
// diagnostics, and a live event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/askorupski/agentflow/internal/diagnostics"
	"github.com/askorupski/agentflow/internal/escalate"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/history"
	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/logging"
	"github.com/askorupski/agentflow/internal/recovery"
	"github.com/askorupski/agentflow/internal/runcache"
	"github.com/askorupski/agentflow/internal/thinking"
)

// Server serves the read-mostly observability API. Mutating endpoints are
// limited to lane administration (clear, reconfigure) and cache sweeps.
type Server struct {
	router    chi.Router
	scheduler *lane.Scheduler
	engine    *recovery.Engine
	resolver  *thinking.Resolver
	analyzer  *escalate.Analyzer
	cache     *runcache.Cache
	collector *diagnostics.Collector
	journal   *history.Journal
	bus       *events.EventBus
	logger    *logging.Logger

	corsOrigins []string
	timeout     time.Duration
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal attaches the durable history journal. Without it the recovery
// and escalation endpoints fall back to in-memory history.
func WithJournal(j *history.Journal) ServerOption {
	return func(s *Server) {
		s.journal = j
	}
}

// WithCORSOrigins restricts cross-origin access to the given origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCollector sets the host diagnostics collector.
func WithCollector(c *diagnostics.Collector) ServerOption {
	return func(s *Server) {
		s.collector = c
	}
}

// NewServer creates the observability API server.
func NewServer(
	scheduler *lane.Scheduler,
	engine *recovery.Engine,
	resolver *thinking.Resolver,
	analyzer *escalate.Analyzer,
	cache *runcache.Cache,
	bus *events.EventBus,
	opts ...ServerOption,
) *Server {
	s := &Server{
		scheduler:   scheduler,
		engine:      engine,
		resolver:    resolver,
		analyzer:    analyzer,
		cache:       cache,
		bus:         bus,
		logger:      logging.NewNop(),
		corsOrigins: []string{"*"},
		timeout:     60 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.collector == nil {
		s.collector = diagnostics.NewCollector()
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/lanes", func(r chi.Router) {
			r.Get("/", s.handleListLanes)

			r.Route("/{lane}", func(r chi.Router) {
				r.Get("/", s.handleGetLane)
				r.Post("/clear", s.handleClearLane)
				r.Put("/config", s.handleUpdateLaneConfig)
			})
		})

		r.Get("/stats", s.handleStats)
		r.Get("/recovery/history", s.handleRecoveryHistory)
		r.Get("/escalations", s.handleEscalations)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.handleCacheStats)
			r.Post("/sweep", s.handleCacheSweep)
		})

		r.Get("/system", s.handleSystem)

		// SSE endpoint for real-time updates
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
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps a structured error to its HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		status = http.StatusInternalServerError
	}
	respondError(w, status, err.Error())
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}
