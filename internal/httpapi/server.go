// Package httpapi serves the session REST API, the per-session event stream,
// and the MCP transport on one HTTP listener.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

// HealthCheck probes one dependency for the deep health report
type HealthCheck func(ctx context.Context) bool

// Server is the HTTP front end of the session manager
type Server struct {
	cfg      config.ServerConfig
	sessions *coordinator.SessionManager
	mcp      *coordinator.MCPServer
	checks   map[string]HealthCheck
	logger   *slog.Logger
	now      func() time.Time
	router   chi.Router

	// closing is closed on shutdown to end open event streams
	closing   chan struct{}
	closeOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMCP mounts the MCP SSE transport under the server's base path
func WithMCP(ms *coordinator.MCPServer) Option {
	return func(s *Server) {
		s.mcp = ms
	}
}

// WithHealthCheck adds a component to the deep health report
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// New creates the server and builds its routes
func New(cfg config.ServerConfig, sessions *coordinator.SessionManager, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		checks:   make(map[string]HealthCheck),
		logger:   slog.Default(),
		now:      time.Now,
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(s.requestIDMiddleware)
	r.Use(s.recovererMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)
	r.Use(s.affinityMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(s.touchSessionMiddleware)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleSendMessage)
			r.Get("/messages", s.handleGetMessages)
			r.Post("/cancel", s.handleCancel)
			r.Get("/events", s.handleEvents)
		})
	})

	if s.mcp != nil {
		sse := s.mcp.SSEHandler(s.baseURL())
		r.Handle(s.mcp.BasePath()+"/*", sse)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}

func (s *Server) baseURL() string {
	return fmt.Sprintf("http://%s", s.cfg.Addr())
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. A bind failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout.Std(),
	}
	httpServer.RegisterOnShutdown(s.signalClosing)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) signalClosing() {
	s.closeOnce.Do(func() { close(s.closing) })
}
