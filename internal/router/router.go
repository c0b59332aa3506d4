package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-resilience-api/internal/config"
	"github.com/noah-isme/portal-resilience-api/internal/handler"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BackupHandler       *handler.BackupHandler
	ActivityHandler     *handler.ActivityHandler
	CalculationHandler  *handler.CalculationHandler
	ConnectivityHandler *handler.ConnectivityHandler
	Store               handler.Pinger
	Version             string
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Store, deps.Version))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware)

	if deps.BackupHandler != nil {
		deps.BackupHandler.Register(protected,
			middleware.RequireUser(),
			middleware.RateLimit("backups", cfg.BackupRateLimit, cfg.BackupRateWindow),
		)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(protected)
	}

	if deps.CalculationHandler != nil {
		deps.CalculationHandler.Register(protected)
	}

	if deps.ConnectivityHandler != nil {
		deps.ConnectivityHandler.Register(protected)
	}
}
