// Package api exposes the service over HTTP: sessions, chat, deferred turns,
// wallet authentication, health and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ChainAgent/internal/archive"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/internal/session"
	"ChainAgent/internal/task"
	"ChainAgent/internal/walletauth"
	"ChainAgent/pkg/logger"
)

// Config tunes the HTTP server.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server routes requests to the service components. Tasks and history are
// optional; their endpoints 404 when the backing component is not configured.
type Server struct {
	cfg      Config
	sessions *session.Manager
	runner   task.Runner
	auth     *walletauth.Service
	tasks    *task.Service
	history  archive.Store
	log      *slog.Logger
	router   chi.Router
}

// Option configures optional server components.
type Option func(*Server)

// WithTasks enables the deferred-turn endpoints.
func WithTasks(tasks *task.Service) Option {
	return func(s *Server) { s.tasks = tasks }
}

// WithHistory enables the archived-turn listing endpoint.
func WithHistory(store archive.Store) Option {
	return func(s *Server) { s.history = store }
}

// NewServer wires the router.
func NewServer(cfg Config, sessions *session.Manager, runner task.Runner, auth *walletauth.Service, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		runner:   runner,
		auth:     auth,
		log:      logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.observeMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/session", func(r chi.Router) {
		r.Use(s.auth.Middleware(false))
		r.Post("/", s.handleCreateSession)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDeleteSession)
	})

	r.Route("/agent", func(r chi.Router) {
		r.Use(s.auth.Middleware(false))
		r.Post("/chat", s.handleChat)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/history", s.handleHistory)
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Get("/nonce/{address}", s.handleNonce)
		r.Post("/verify", s.handleVerify)
		r.With(s.auth.Middleware(true)).Get("/me", s.handleMe)
	})

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Info("http server listening", "address", s.cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
