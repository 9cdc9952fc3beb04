// Package core provides the API chassis for SimpleNotes. It builds a chi
// router, enforces cross-cutting concerns (recovery, request IDs, logging,
// CORS, metrics, authentication, compression) and leaves domain routes to
// the handlers package through V1RouteRegistrars.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"simplenotes/internal/config"
)

// Server encapsulates all dependencies for the SimpleNotes API, allowing for
// injection during testing and distinct configuration per environment.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        *Metrics
	Authenticator  Authenticator // Resolves bearer tokens to Actors.
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. Populated by main to
	// avoid an import cycle between core and handlers.
	V1RouteRegistrars []func(r chi.Router)

	// PublicPaths are exact paths served without authentication, in addition
	// to the chassis defaults.
	PublicPaths []string

	shutdownHooks []func(context.Context) error
	router        *chi.Mux
	publicPaths   map[string]bool
}

// NewServer initializes the chassis. Routes are mounted separately with
// MountRoutes so tests can customize registration first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router wrapped in gzip response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a hook run by Shutdown in registration order.
func (s *Server) OnShutdown(hook func(context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, hook)
}

// Shutdown releases server resources (database pool, etc.). Every hook runs;
// the first error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var first error
	for _, hook := range s.shutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return fmt.Errorf("server shutdown: %w", first)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
