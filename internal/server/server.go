package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sentra-io/sentra/internal/engine"
	"github.com/sentra-io/sentra/internal/otel"
	"github.com/sentra-io/sentra/internal/snapshot"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	engine      *engine.Engine
	snapshots   *snapshot.Store
	limiter     *RateLimiter
	apiKeys     map[string]string
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithSnapshotStore enables the snapshot listing endpoint.
func WithSnapshotStore(st *snapshot.Store) Option {
	return func(s *Server) { s.snapshots = st }
}

// WithRateLimiter sets the per-caller rate limiter (optional).
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer builds a Server around one engine. apiKeys maps API key to
// caller key; an empty map means every request is rejected.
func NewServer(e *engine.Engine, apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		engine:      e,
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware
// and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(QuarantineMiddleware(s.engine.CallerQuarantined))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/events", s.handleEvent)
		r.Post("/v1/generate", s.handleGenerate)
		r.Post("/v1/memory/retrieve", s.handleRetrieve)

		r.Get("/v1/state", s.handleState)
		r.Get("/v1/status", s.handleStatus)

		r.Post("/v1/callers/{key}/reset", s.handleCallerReset)

		r.Post("/v1/snapshots", s.handleSnapshotSave)
		r.Get("/v1/snapshots", s.handleSnapshotList)
	})

	return r
}
