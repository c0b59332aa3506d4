package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/events"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

const defaultRestorePageSize = 200

// RestoreService re-stamps a user's calculation records with an earlier version.
type RestoreService interface {
	RestoreToVersion(ctx context.Context, version, userID string) (dto.RestoreResult, error)
}

type restoreService struct {
	store      repository.RecordStore
	activities ActivityRecorder
	publisher  EventPublisher
	pageSize   int
	tracer     trace.Tracer
	now        func() time.Time
	logger     zerolog.Logger
}

// NewRestoreService constructs the restore engine. publisher is optional.
func NewRestoreService(store repository.RecordStore, activities ActivityRecorder, publisher EventPublisher, pageSize int, logger zerolog.Logger) RestoreService {
	if pageSize <= 0 {
		pageSize = defaultRestorePageSize
	}
	return &restoreService{
		store:      store,
		activities: activities,
		publisher:  publisher,
		pageSize:   pageSize,
		tracer:     observability.Tracer("service/restore"),
		now:        time.Now,
		logger:     logger.With().Str("component", "restore_service").Logger(),
	}
}

func (s *restoreService) RestoreToVersion(ctx context.Context, version, userID string) (result dto.RestoreResult, err error) {
	ctx, span := s.tracer.Start(ctx, "backup.restore")
	defer func() {
		observability.Restores().WithLabelValues(outcomeOf(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	version = strings.TrimSpace(version)
	if _, ok := models.LookupVersion(version); !ok {
		return dto.RestoreResult{}, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.RestoreResult{}, ErrMissingUser
	}
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("restore.version", version))

	now := s.now().UTC()
	preRestore := models.PreRestoreSnapshot{
		Type:          models.SnapshotTypePreRestore,
		UserID:        userID,
		TargetVersion: version,
		FromVersion:   models.CurrentVersion().Version,
		Reason:        fmt.Sprintf("Automatic backup before restoring to version %s", version),
		Timestamp:     now,
	}
	backup, err := preRestore.ToRecord()
	if err != nil {
		return dto.RestoreResult{}, fmt.Errorf("encode pre-restore snapshot: %w", err)
	}
	if err := s.store.Set(ctx, backup, repository.SetOptions{}); err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Msg("failed to write pre-restore snapshot")
		return dto.RestoreResult{}, fmt.Errorf("%w: write pre-restore snapshot: %v", ErrBackendUnavailable, err)
	}

	restored := 0
	err = s.store.RunTransaction(ctx, func(tx repository.RecordTx) error {
		restored = 0
		var cursor *repository.Cursor
		for {
			page, err := tx.Query(ctx, repository.RecordQuery{
				Collection: models.CollectionCalculations,
				UserID:     userID,
				Limit:      s.pageSize,
				After:      cursor,
			})
			if err != nil {
				return err
			}

			for _, record := range page {
				if err := tx.Set(ctx, restamp(record, version, now), repository.SetOptions{
					IfRevision: repository.IfRevision(record.Revision),
				}); err != nil {
					return err
				}
				restored++
			}

			if len(page) < s.pageSize {
				return nil
			}
			cursor = repository.CursorOf(page[len(page)-1])
		}
	})
	if err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Str("version", version).Msg("restore transaction failed")
		return dto.RestoreResult{}, fmt.Errorf("%w: restore calculations: %v", ErrBackendUnavailable, err)
	}

	observability.RestoredRecords().Add(float64(restored))

	_ = s.activities.Record(ctx, userID, models.ActivitySystem,
		fmt.Sprintf("Restored %d calculation records to version %s", restored, version),
		models.Metadata{
			"version":              models.StringValue(version),
			"restoredCalculations": models.IntValue(int64(restored)),
			"backupId":             models.StringValue(backup.ID),
		})

	result = dto.RestoreResult{
		Success:              true,
		Version:              version,
		RestoredCalculations: restored,
		BackupID:             backup.ID,
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.TopicRestored, result); err != nil {
			observability.Logger(ctx, s.logger).Debug().Err(err).Msg("event publish failed")
		}
	}

	observability.Logger(ctx, s.logger).Info().Str("user_id", userID).Str("version", version).Int("restored", restored).Msg("calculations restored")
	return result, nil
}

// restamp returns a copy of a calculation record carrying the target version. The
// prior version and the restore instant are kept in its metadata.
func restamp(record models.Record, version string, at time.Time) models.Record {
	updated := record.Clone()
	prior, _ := updated.Data["version"].(string)

	metadata, ok := updated.Data["metadata"].(map[string]interface{})
	if !ok || metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["restoredFrom"] = prior
	metadata["restoredAt"] = at.Format(time.RFC3339Nano)

	updated.Data["version"] = version
	updated.Data["metadata"] = metadata
	return updated
}
