// Package core provides the API chassis for the reminder service. It builds
// a chi router with the cross-cutting middleware chain (recovery, timeouts,
// request IDs, logging, compression, metrics, auth) applied before requests
// reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"calwatch/internal/config"
	"calwatch/internal/types"
)

// Authenticator resolves a raw bearer token to an Actor.
type Authenticator interface {
	Verify(ctx context.Context, token string) (types.Actor, error)
}

// APIMetrics records per-request telemetry.
type APIMetrics interface {
	RecordAPILatency(ctx context.Context, endpoint string, status int, duration time.Duration)
}

// RouteRegistrar mounts a group of domain handler routes onto the v1 router.
// The indirection keeps core free of handler package imports.
type RouteRegistrar func(r chi.Router)

// Server bundles the dependencies of the HTTP API so tests can inject
// substitutes for any of them.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator
	Metrics       APIMetrics
	HealthProbes  []HealthProbe

	// V1RouteRegistrars is populated by the application entry point before
	// MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer prepares the server for route mounting. It fails fast on missing
// critical dependencies; optional collaborators (Metrics, Authenticator,
// HealthProbes) may be set on the returned struct before MountRoutes.
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

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	s.Logger.Info("server shutdown complete")
	return nil
}
