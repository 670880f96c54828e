// Package server exposes a password store over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Davincible/polypasshash/pkg/metrics"
	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/Davincible/polypasshash/pkg/ratelimit"
	"github.com/Davincible/polypasshash/pkg/storage"
	"github.com/go-chi/chi/v5"
)

// Config holds the server configuration.
type Config struct {
	// Addr is the TCP address to listen on (default: 127.0.0.1:8420)
	Addr string

	// Store is the password store to serve
	Store *passwords.Store

	// File receives the password data after every new account (optional)
	File *storage.PasswordFile

	// Metrics enables the /metrics endpoint and request metrics (optional)
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Limiter throttles every route that checks passwords, per client (optional)
	Limiter *ratelimit.Limiter

	// MinPasswordLength applies to new accounts
	MinPasswordLength int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end of a password store.
type Server struct {
	server            *http.Server
	store             *passwords.Store
	file              *storage.PasswordFile
	metrics           *metrics.Metrics
	logger            *slog.Logger
	limiter           *ratelimit.Limiter
	minPasswordLength int
	shutdownTimeout   time.Duration

	writeMu sync.Mutex
}

// New creates a server. It does not start listening.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	// Set defaults
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8420"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		store:             cfg.Store,
		file:              cfg.File,
		metrics:           cfg.Metrics,
		logger:            log,
		limiter:           cfg.Limiter,
		minPasswordLength: cfg.MinPasswordLength,
		shutdownTimeout:   cfg.ShutdownTimeout,
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.healthHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.statusHandler)
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(ratelimit.Middleware(s.limiter, s.rateLimited))
			}
			r.Post("/login", s.loginHandler)
			r.Post("/unlock", s.unlockHandler)
			r.Post("/accounts", s.createAccountHandler)
		})
		r.Get("/accounts", s.listAccountsHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Code: http.StatusMethodNotAllowed})
	})

	return r
}

// Handler returns the routed HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", "addr", l.Addr().String())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}
