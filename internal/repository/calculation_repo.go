package repository

import (
	"context"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

// CalculationRepository stores ROI calculator results.
type CalculationRepository interface {
	Create(ctx context.Context, calc *models.CalculationRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.CalculationRecord, error)
}

type calculationRepository struct {
	store RecordStore
}

// NewCalculationRepository constructs the calculation repository.
func NewCalculationRepository(store RecordStore) CalculationRepository {
	return &calculationRepository{store: store}
}

func (r *calculationRepository) Create(ctx context.Context, calc *models.CalculationRecord) error {
	stored, err := r.store.Add(ctx, calc.ToRecord())
	if err != nil {
		return err
	}
	calc.ID = stored.ID
	calc.Timestamp = stored.Timestamp
	return nil
}

func (r *calculationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.CalculationRecord, error) {
	records, err := r.store.Query(ctx, RecordQuery{
		Collection: models.CollectionCalculations,
		UserID:     userID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	calcs := make([]models.CalculationRecord, 0, len(records))
	for _, record := range records {
		calc, err := models.CalculationFromRecord(record)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}
