package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/server/handler"
	"github.com/alanyoungcy/offerstream/internal/server/middleware"
	"github.com/alanyoungcy/offerstream/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigins     []string
	RateLimit       int
	RateLimitWindow time.Duration
	AdminToken      string // guards operator endpoints; empty leaves them open
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Everything except Health and Sessions is optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Sessions  *handler.SessionHandler
	Status    *handler.StatusHandler
	Events    *handler.EventsHandler
	Snapshots *handler.PipelineHandler
	Metrics   http.Handler
	Limiter   domain.RateLimiter
}

// Server is the HTTP + WebSocket front of the offer service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	// The read API is rate limited when a limiter is configured; the push
	// channel and operational endpoints are not.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/sessions", handlers.Sessions.ListSessions)
	api.HandleFunc("GET /api/sessions/{id}", handlers.Sessions.GetSession)
	if handlers.Status != nil {
		api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Events != nil {
		api.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}
	if handlers.Snapshots != nil {
		api.Handle("POST /api/snapshots/trigger",
			middleware.RequireToken(cfg.AdminToken, logger)(http.HandlerFunc(handlers.Snapshots.TriggerSnapshot)))
	}
	var apiHandler http.Handler = api
	if handlers.Limiter != nil && cfg.RateLimit > 0 {
		apiHandler = middleware.RateLimit(handlers.Limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(api)
	}
	mux.Handle("/api/", apiHandler)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, "/metrics", "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout is left unset: hijacked WebSocket connections manage
		// their own deadlines.
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler exposes the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
