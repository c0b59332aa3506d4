package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// CalculationHandler stores and lists ROI calculator results.
type CalculationHandler struct {
	service service.CalculationService
	logger  zerolog.Logger
}

// NewCalculationHandler constructs a calculation handler.
func NewCalculationHandler(service service.CalculationService, logger zerolog.Logger) *CalculationHandler {
	return &CalculationHandler{
		service: service,
		logger:  logger.With().Str("component", "calculation_handler").Logger(),
	}
}

// Register binds calculation routes.
func (h *CalculationHandler) Register(router fiber.Router) {
	router.Get("/calculations", h.list)
	router.Post("/calculations", h.create)
}

func (h *CalculationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid limit")
	}

	calcs, err := h.service.List(requestContext(c), middleware.CurrentUserID(c), limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return utils.SendSuccess(c, "calculations", calcs)
}

func (h *CalculationHandler) create(c *fiber.Ctx) error {
	var payload dto.CalculationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid request body")
	}

	calc, err := h.service.Save(requestContext(c), middleware.CurrentUserID(c), payload)
	if err != nil {
		return writeServiceError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "calculation saved", calc)
}
