package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/audit/recorder"
	"hireloop/gatehouse/pkg/config"
	"hireloop/gatehouse/pkg/middleware"
	"hireloop/gatehouse/pkg/telemetry/metrics"
	"hireloop/gatehouse/pkg/throttle"
)

// Deps holds the wired components the server serves.
type Deps struct {
	// Evaluator enforces the per-principal rate limit policies.
	Evaluator *throttle.Evaluator

	// AuditStore backs the audit reporting API. Nil disables it.
	AuditStore audit.Storage

	// Recorder feeds the request access log. Nil disables it.
	Recorder *recorder.Recorder

	// Metrics exposes Prometheus metrics. Nil disables them.
	Metrics *metrics.Collector
}

// Server is the gatehouse HTTP server.
type Server struct {
	config       *config.Config
	deps         Deps
	jobs         *JobStore
	guard        *middleware.FloodGuard
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new server from configuration and wired components.
func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
		jobs:   NewJobStore(),
		guard: middleware.NewFloodGuard(&middleware.FloodGuardConfig{
			Enabled:           cfg.FloodGuard.Enabled,
			RequestsPerSecond: cfg.FloodGuard.RequestsPerSecond,
			Burst:             cfg.FloodGuard.Burst,
			IdleTTL:           cfg.FloodGuard.IdleTTL,
		}),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gatehouse server",
			"address", s.config.Server.ListenAddress,
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String(),
		)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.guard.Close()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("gatehouse server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.Handle("POST /api/jobs",
		s.throttled("create_job", http.HandlerFunc(s.handleCreateJob)))
	mux.Handle("DELETE /api/jobs/{id}",
		s.throttled("delete_job", http.HandlerFunc(s.handleDeleteJob)))
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/audit", s.handleAuditQuery)

	if s.config.Telemetry.Metrics.Enabled && s.deps.Metrics != nil {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux

	// Access log sits inside Principal so it sees the resolved metadata.
	if s.deps.Recorder != nil && s.config.Audit.Enabled {
		handler = middleware.AccessLog(s.deps.Recorder, s.config.Audit.SkipPathPrefix)(handler)
	}
	handler = middleware.Principal(s.config.Server.TrustProxyHeaders)(handler)
	handler = s.guard.Middleware(handler)
	if s.deps.Metrics != nil {
		handler = middleware.Metrics(s.deps.Metrics)(handler)
	}
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// throttled wraps a handler with the configured policy for an action.
func (s *Server) throttled(action string, next http.Handler) http.Handler {
	policy, ok := s.config.Throttle.Policies[action]
	if !ok {
		// Unconfigured actions pass through; validation keeps the
		// built-in actions configured.
		slog.Warn("no throttle policy for action, serving unthrottled", "action", action)
		return next
	}

	return middleware.Throttle(s.deps.Evaluator, middleware.Policy{
		Action:        action,
		Limit:         policy.Limit,
		WindowSeconds: policy.WindowSeconds,
	})(next)
}
