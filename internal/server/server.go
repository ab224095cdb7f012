package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/history"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Executor runs code. *engine.Dispatcher satisfies it.
type Executor interface {
	Languages() []workspace.Language
	Execute(ctx context.Context, req engine.ExecutionRequest) engine.ExecutionResult
}

// Fixer asks a model for corrected code. *engine.Fixer satisfies it.
type Fixer interface {
	Available() bool
	Fix(ctx context.Context, code string, lang workspace.Language, lastReport string) (string, bool, error)
}

// History is the read side of the run history. *history.Store satisfies it.
type History interface {
	Get(ctx context.Context, id string) (*history.Run, error)
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	Search(ctx context.Context, query string, limit int) ([]history.Run, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	MaxTimeout     time.Duration // upper bound accepted for timeout_ms
	DefaultTimeout time.Duration // used when a request omits timeout_ms
}

// Server exposes the engine over HTTP.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	exec    Executor
	fixer   Fixer
	history History
}

// New builds the router. fixer and hist may be nil; their routes then
// answer 503.
func New(cfg Config, exec Executor, fixer Fixer, hist History, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 10 * time.Minute
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = engine.DefaultTimeout
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		exec:    exec,
		fixer:   fixer,
		history: hist,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(Logger(s.logger))

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/languages", s.handleLanguages)
		r.Post("/run", s.handleRun)
		r.Post("/fix", s.handleFix)
		r.Get("/history", s.handleHistory)
		r.Get("/history/search", s.handleHistorySearch)
		r.Get("/history/{id}", s.handleHistoryGet)
	})
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Runs may take up to MaxTimeout plus a build.
		WriteTimeout: s.config.MaxTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.Int("languages", len(s.exec.Languages())),
			slog.Bool("fix", s.fixAvailable()),
			slog.Bool("history", s.history != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

func (s *Server) fixAvailable() bool {
	return s.fixer != nil && s.fixer.Available()
}
