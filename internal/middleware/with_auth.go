package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// RequireUser rejects requests that carry no authenticated subject.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUserID(c) == "" {
			return utils.SendErrorCode(c, fiber.StatusUnauthorized, "missing_user", "authentication required")
		}
		return c.Next()
	}
}

// WithUser wraps a single handler with the RequireUser guard.
func WithUser(handler fiber.Handler) fiber.Handler {
	guard := RequireUser()
	return func(c *fiber.Ctx) error {
		if CurrentUserID(c) == "" {
			return guard(c)
		}
		return handler(c)
	}
}
