package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// ActivityHandler exposes the user's activity log.
type ActivityHandler struct {
	service   service.ActivityService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityHandler constructs an activity handler.
func NewActivityHandler(service service.ActivityService, validator *validator.Validate, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register binds activity routes.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/activities", h.list)
	router.Post("/activities", h.create)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid limit")
	}

	recent := h.service.RecentActivities(requestContext(c), middleware.CurrentUserID(c), limit)
	return utils.SendSuccess(c, "recent activities", recent)
}

// create accepts the entry even when it cannot be stored; logging never blocks the
// client flow that triggered it.
func (h *ActivityHandler) create(c *fiber.Ctx) error {
	var payload dto.ActivityCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid activity", err.Error())
	}

	if err := h.service.Create(requestContext(c), middleware.CurrentUserID(c), payload); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("type", payload.Type).Msg("activity not recorded")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "activity accepted", nil)
}
