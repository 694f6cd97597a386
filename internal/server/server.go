// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/config"
	"github.com/jeranaias/mimochat/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// HealthPingTimeout bounds the endpoint probe behind GET /health.
	HealthPingTimeout = 2 * time.Second

	// ShutdownGrace is how long Run waits for connections to drain.
	ShutdownGrace = 5 * time.Second
)

//go:embed static
var staticFiles embed.FS

// ============================================================================
// BACKEND
// ============================================================================

// Backend is the completion endpoint as the server needs it: streaming for
// sessions and a reachability probe for /health.
type Backend interface {
	session.Completer
	Ping(ctx context.Context) error
}

// BackendFactory builds a Backend for a configuration snapshot.
type BackendFactory func(cfg *config.Config) Backend

// DefaultBackend returns a completion.Client for cfg.
func DefaultBackend(cfg *config.Config) Backend {
	return completion.NewClient(cfg.ClientConfig())
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the browser chat page and one session per websocket.
// Sessions share nothing; each owns its controller and conversation.
type Server struct {
	cfg        atomic.Pointer[config.Config]
	newBackend BackendFactory
	logger     *slog.Logger
	version    string
	router     *http.ServeMux
	server     *http.Server

	active atomic.Int64
	conns  sync.WaitGroup

	mu      sync.Mutex
	backend Backend
	backCfg *config.Config
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackendFactory replaces how Backends are built.
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Server) {
		if f != nil {
			s.newBackend = f
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a Server for cfg.
func New(cfg *config.Config, options ...Option) *Server {
	s := &Server{
		newBackend: DefaultBackend,
		logger:     slog.Default(),
		version:    "dev",
		router:     http.NewServeMux(),
	}
	for _, o := range options {
		o(s)
	}
	s.cfg.Store(cfg)
	s.setupRoutes()
	return s
}

// Config returns the current configuration snapshot.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// SetConfig replaces the snapshot. Open sessions keep the one they started
// with; new connections see cfg.
func (s *Server) SetConfig(cfg *config.Config) {
	prev := s.cfg.Swap(cfg)
	if prev != nil && prev.Server.Addr != cfg.Server.Addr {
		s.logger.Warn("listen address change needs a restart", "current", prev.Server.Addr, "configured", cfg.Server.Addr)
	}
	s.logger.Info("config applied", "model", cfg.Endpoint.Model, "url", cfg.Endpoint.URL)
}

// ActiveSessions returns the number of open websocket sessions.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// backendFor returns the Backend for cfg, rebuilding it only when the
// snapshot changed.
func (s *Server) backendFor(cfg *config.Config) Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil || s.backCfg != cfg {
		s.backend = s.newBackend(cfg)
		s.backCfg = cfg
	}
	return s.backend
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.Handle("GET /{$}", http.FileServerFS(static))
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	s.router.HandleFunc("GET /ws", s.handleWebSocket)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		OriginMiddleware(s.originPolicy),
	)(s.router)
}

func (s *Server) originPolicy() OriginPolicy {
	return OriginPolicy{AllowedOrigins: s.Config().Server.AllowedOrigins}
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Model          string `json:"model"`
	Endpoint       string `json:"endpoint"`
	EndpointStatus string `json:"endpoint_status"`
	Sessions       int64  `json:"sessions"`
}

// handleHealth reports liveness and whether the completion endpoint answers.
// It always returns 200; a down endpoint only degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	health := HealthResponse{
		Status:         "ok",
		Version:        s.version,
		Model:          cfg.Endpoint.Model,
		Endpoint:       cfg.Endpoint.URL,
		EndpointStatus: "ok",
		Sessions:       s.ActiveSessions(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthPingTimeout)
	defer cancel()
	if err := s.backendFor(cfg).Ping(ctx); err != nil {
		health.Status = "degraded"
		health.EndpointStatus = "unavailable"
	}

	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config().Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("server start", "addr", ln.Addr().String(), "version", s.version)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for open sessions to end.
// Hijacked websocket connections are not tracked by http.Server, so their
// cancellation rides on the base context passed to Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("server shutdown", "sessions", s.ActiveSessions())
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
