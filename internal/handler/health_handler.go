package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-resilience-api/internal/config"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Store       string    `json:"store"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
}

// HealthCheck returns a handler that reports application health information.
// A failing store degrades the status but never fails liveness.
func HealthCheck(cfg config.Config, store Pinger, version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Store:       "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Version:     version,
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				payload.Status = "degraded"
				payload.Store = err.Error()
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
