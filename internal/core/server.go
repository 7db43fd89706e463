// Package core provides the HTTP chassis for the operator API: a chi router
// with the cross-cutting middleware chain (panic recovery, request IDs,
// structured request logging, bearer-token auth) applied before requests
// reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remindpoint/internal/config"
)

// RouteRegistrar mounts a group of domain routes on the v1 router. The
// indirection keeps handler packages from importing core's router setup.
type RouteRegistrar func(r chi.Router)

// Server holds the operator API dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	HealthProbes []HealthProbe

	// Registrars populated by the entry point before MountRoutes.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer creates a Server with fail-fast dependency checks. The caller
// mounts routes afterwards.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain and all routes. Ordering
// matters: Recoverer is outermost so every panic is caught, RequestID runs
// before the logger so log lines carry the correlation ID, and auth guards
// only the /v1 namespace so /health stays public.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
