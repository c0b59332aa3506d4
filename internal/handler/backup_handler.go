package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	"github.com/noah-isme/portal-resilience-api/internal/utils"
)

// BackupHandler exposes snapshot creation, inspection and version restores.
type BackupHandler struct {
	backups   service.BackupService
	restores  service.RestoreService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewBackupHandler constructs a backup handler.
func NewBackupHandler(backups service.BackupService, restores service.RestoreService, validator *validator.Validate, logger zerolog.Logger) *BackupHandler {
	return &BackupHandler{
		backups:   backups,
		restores:  restores,
		validator: validator,
		logger:    logger.With().Str("component", "backup_handler").Logger(),
	}
}

// Register binds backup routes. guards run before snapshot creation only.
func (h *BackupHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	create := append(append([]fiber.Handler{}, guards...), h.create)
	router.Post("/backups", create...)
	router.Get("/backups/latest", h.latest)
	router.Get("/backups/archives", h.archives)
	router.Post("/restores", h.restore)
	router.Get("/versions", h.versions)
}

func (h *BackupHandler) create(c *fiber.Ctx) error {
	result, err := h.backups.CreateBackup(requestContext(c), middleware.CurrentUserID(c))
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Msg("backup failed")
		return writeServiceError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "backup created", result)
}

func (h *BackupHandler) latest(c *fiber.Ctx) error {
	snapshot, err := h.backups.LatestBackup(requestContext(c), middleware.CurrentUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return utils.SendSuccess(c, "latest backup", snapshot)
}

func (h *BackupHandler) archives(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid limit")
	}

	archives, err := h.backups.ListArchives(requestContext(c), middleware.CurrentUserID(c), limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return utils.OK(c, archives, "backup archives", fiber.Map{"count": len(archives)})
}

func (h *BackupHandler) restore(c *fiber.Ctx) error {
	var payload dto.RestoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_payload", "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "version is required", err.Error())
	}

	result, err := h.restores.RestoreToVersion(requestContext(c), payload.Version, middleware.CurrentUserID(c))
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("version", payload.Version).Msg("restore failed")
		return writeServiceError(c, err)
	}
	return utils.SendSuccess(c, "restore completed", result)
}

func (h *BackupHandler) versions(c *fiber.Ctx) error {
	current := models.CurrentVersion().Version
	tags := models.Versions()

	responses := make([]dto.VersionResponse, 0, len(tags))
	for _, tag := range tags {
		responses = append(responses, dto.VersionResponse{VersionTag: tag, Current: tag.Version == current})
	}
	return utils.SendSuccess(c, "versions", responses)
}
