package repository

import (
	"context"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

// ActivityLogRepository persists the append-only activity stream.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityRecord) error
	ListRecent(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error)
}

type activityLogRepository struct {
	store RecordStore
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(store RecordStore) ActivityLogRepository {
	return &activityLogRepository{store: store}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityRecord) error {
	stored, err := r.store.Add(ctx, entry.ToRecord())
	if err != nil {
		return err
	}
	entry.ID = stored.ID
	entry.Timestamp = stored.Timestamp
	return nil
}

func (r *activityLogRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ActivityRecord, error) {
	records, err := r.store.Query(ctx, RecordQuery{
		Collection: models.CollectionActivities,
		UserID:     userID,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]models.ActivityRecord, 0, len(records))
	for _, record := range records {
		entry, err := models.ActivityFromRecord(record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
