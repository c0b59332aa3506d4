package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

const (
	defaultCalculationListLimit = 20
	maxCalculationListLimit     = 100
)

// CalculationService stores ROI calculator results stamped with the current version.
type CalculationService interface {
	Save(ctx context.Context, userID string, payload dto.CalculationCreateRequest) (dto.CalculationResponse, error)
	List(ctx context.Context, userID string, limit int) ([]dto.CalculationResponse, error)
}

type calculationService struct {
	repo       repository.CalculationRepository
	activities ActivityRecorder
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewCalculationService constructs the calculation service.
func NewCalculationService(repo repository.CalculationRepository, activities ActivityRecorder, validator *validator.Validate, logger zerolog.Logger) CalculationService {
	return &calculationService{
		repo:       repo,
		activities: activities,
		validator:  validator,
		logger:     logger.With().Str("component", "calculation_service").Logger(),
	}
}

func (s *calculationService) Save(ctx context.Context, userID string, payload dto.CalculationCreateRequest) (dto.CalculationResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.CalculationResponse{}, ErrMissingUser
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.CalculationResponse{}, err
	}

	metadata, err := models.MetadataFromMap(payload.Metadata)
	if err != nil {
		return dto.CalculationResponse{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	calc := models.CalculationRecord{
		UserID:   userID,
		Input:    payload.Input,
		Results:  payload.Results,
		Version:  models.CurrentVersion().Version,
		Metadata: metadata,
	}
	if err := s.repo.Create(ctx, &calc); err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Msg("failed to save calculation")
		return dto.CalculationResponse{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	_ = s.activities.Record(ctx, userID, models.ActivityDocument, "ROI calculation saved", models.Metadata{
		"calculationId": models.StringValue(calc.ID),
		"version":       models.StringValue(calc.Version),
	})

	return dto.NewCalculationResponse(calc), nil
}

func (s *calculationService) List(ctx context.Context, userID string, limit int) ([]dto.CalculationResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	calcs, err := s.repo.ListByUser(ctx, userID, clampLimit(limit, defaultCalculationListLimit, maxCalculationListLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	responses := make([]dto.CalculationResponse, 0, len(calcs))
	for _, calc := range calcs {
		responses = append(responses, dto.NewCalculationResponse(calc))
	}
	return responses, nil
}
