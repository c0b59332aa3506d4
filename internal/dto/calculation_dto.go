package dto

import (
	"time"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

// CalculationCreateRequest is the payload saved by the ROI calculator.
type CalculationCreateRequest struct {
	Input    map[string]interface{} `json:"input" validate:"required"`
	Results  map[string]interface{} `json:"results" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// CalculationResponse serialises a calculation record.
type CalculationResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Input     map[string]interface{} `json:"input"`
	Results   map[string]interface{} `json:"results"`
	Version   string                 `json:"version"`
	Metadata  models.Metadata        `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewCalculationResponse maps a model to its response form.
func NewCalculationResponse(calc models.CalculationRecord) CalculationResponse {
	return CalculationResponse{
		ID:        calc.ID,
		UserID:    calc.UserID,
		Input:     calc.Input,
		Results:   calc.Results,
		Version:   calc.Version,
		Metadata:  calc.Metadata,
		Timestamp: calc.Timestamp,
	}
}
