package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gatewayd-labs/auth-gateway/internal/api/http/handlers"
	"github.com/gatewayd-labs/auth-gateway/internal/auth"
	"github.com/gatewayd-labs/auth-gateway/internal/config"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Session     config.SessionConfig
	Health      *handlers.HealthHandler
	Sessions    *handlers.SessionHandler
	Identity    *handlers.IdentityHandler
	Coordinator *auth.SchemeCoordinator
}

// RegisterRoutes wires HTTP routes. Health probes are not authenticated;
// everything else passes through the scheme coordinator first.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	health := app.Group("/health")
	health.Get("/live", cfg.Health.Live)
	health.Get("/ready", cfg.Health.Ready)
	health.Get("/metrics", cfg.Health.Metrics)

	gated := app.Group("", cfg.Coordinator.Handle)
	gated.Post(cfg.Session.LoginPath, cfg.Sessions.Login)
	gated.Post(cfg.Session.LogoutPath, cfg.Sessions.Logout)
	gated.Get(cfg.Session.SessionPath, cfg.Sessions.Current)

	api := gated.Group("/api/v1")
	api.Get("/me", cfg.Identity.Me)
}
