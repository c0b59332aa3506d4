package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return observability.WithCorrelationID(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	return observability.Logger(requestContext(c), base)
}

func websocketUserID(conn *websocket.Conn) string {
	if v, ok := conn.Locals("user_id").(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// writeServiceError maps service sentinels onto status codes. The message is the
// literal error text so clients can show it as is.
func writeServiceError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, service.ErrMissingUser):
		status, code = fiber.StatusUnauthorized, "missing_user"
	case errors.Is(err, service.ErrInvalidVersion):
		status, code = fiber.StatusBadRequest, "invalid_version"
	case errors.Is(err, service.ErrInvalidActivityType), errors.Is(err, service.ErrInvalidMetadata), isValidationError(err):
		status, code = fiber.StatusBadRequest, "invalid_payload"
	case errors.Is(err, service.ErrBackupNotFound):
		status, code = fiber.StatusNotFound, "backup_not_found"
	case errors.Is(err, service.ErrBackupConflict):
		status, code = fiber.StatusConflict, "backup_conflict"
	case errors.Is(err, service.ErrBackendUnavailable):
		status, code = fiber.StatusServiceUnavailable, "backend_unavailable"
	}
	return utils.SendErrorCode(c, status, code, err.Error())
}
