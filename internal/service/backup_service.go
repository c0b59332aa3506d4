package service

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/noah-isme/portal-resilience-api/internal/schema"
)

const (
	defaultBackupRecordLimit = 100
	maxBackupRecordLimit     = 100
	maxSnapshotWriteAttempts = 3
	defaultArchiveListLimit  = 20
	maxArchiveListLimit      = 100
)

// SnapshotExporter uploads a serialised snapshot and returns its public URL.
type SnapshotExporter interface {
	UploadJSON(ctx context.Context, name string, payload []byte) (string, error)
}

// EventPublisher publishes domain events to the configured transports.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// BackupConfig tunes snapshot creation.
type BackupConfig struct {
	RecordLimit   int
	ExportEnabled bool
}

// BackupService snapshots a user's versioned collections.
type BackupService interface {
	CreateBackup(ctx context.Context, userID string) (dto.BackupResult, error)
	LatestBackup(ctx context.Context, userID string) (dto.BackupSnapshotResponse, error)
	ListArchives(ctx context.Context, userID string, limit int) ([]dto.ArchivedSnapshotResponse, error)
}

type backupService struct {
	store      repository.RecordStore
	activities ActivityRecorder
	exporter   SnapshotExporter
	publisher  EventPublisher
	config     BackupConfig
	tracer     trace.Tracer
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBackupService constructs the backup engine. exporter and publisher are optional.
func NewBackupService(store repository.RecordStore, activities ActivityRecorder, exporter SnapshotExporter, publisher EventPublisher, config BackupConfig, logger zerolog.Logger) BackupService {
	config.RecordLimit = clampLimit(config.RecordLimit, defaultBackupRecordLimit, maxBackupRecordLimit)
	return &backupService{
		store:      store,
		activities: activities,
		exporter:   exporter,
		publisher:  publisher,
		config:     config,
		tracer:     observability.Tracer("service/backup"),
		now:        time.Now,
		logger:     logger.With().Str("component", "backup_service").Logger(),
	}
}

func (s *backupService) CreateBackup(ctx context.Context, userID string) (result dto.BackupResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "backup.create")
	defer func() {
		observability.BackupLatency().Observe(time.Since(start).Seconds())
		observability.Backups().WithLabelValues(outcomeOf(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.BackupResult{}, ErrMissingUser
	}
	span.SetAttributes(attribute.String("user.id", userID))

	version := models.CurrentVersion()
	snapshot := models.BackupSnapshot{
		UserID:              userID,
		Data:                map[string][]models.SnapshotRecord{},
		Timestamp:           s.now().UTC(),
		Version:             version.Version,
		CollectionsBackedUp: []string{},
	}

	for _, collection := range version.Collections {
		records, err := s.store.Query(ctx, repository.RecordQuery{
			Collection: collection,
			UserID:     userID,
			Limit:      s.config.RecordLimit,
		})
		if err != nil {
			observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Str("collection", collection).Msg("failed to read collection for backup")
			return dto.BackupResult{}, fmt.Errorf("%w: read %s: %v", ErrBackendUnavailable, collection, err)
		}
		if len(records) == 0 {
			continue
		}

		captured := make([]models.SnapshotRecord, 0, len(records))
		for _, record := range records {
			captured = append(captured, models.SnapshotRecord{
				ID:     record.ID,
				Fields: map[string]interface{}(models.CloneFields(record.Data)),
			})
		}
		snapshot.Data[collection] = captured
		snapshot.CollectionsBackedUp = append(snapshot.CollectionsBackedUp, collection)
	}

	record, err := snapshot.ToRecord()
	if err != nil {
		return dto.BackupResult{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := schema.ValidateBackupSnapshot(map[string]interface{}(record.Data)); err != nil {
		return dto.BackupResult{}, err
	}

	archived, revision, err := s.writeSnapshot(ctx, record)
	if err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Msg("failed to write backup snapshot")
		return dto.BackupResult{}, err
	}

	if snapshot.ExportURL = s.export(ctx, snapshot); snapshot.ExportURL != "" {
		s.attachExportURL(ctx, record, revision, snapshot.ExportURL)
	}

	_ = s.activities.Record(ctx, userID, models.ActivitySystem,
		fmt.Sprintf("Backup created: %s", strings.Join(snapshot.CollectionsBackedUp, ", ")),
		models.Metadata{
			"collectionsBackedUp": models.StringsValue(snapshot.CollectionsBackedUp),
			"version":             models.StringValue(snapshot.Version),
			"archivedPrevious":    models.BoolValue(archived),
		})

	result = dto.BackupResult{
		Success:             true,
		CollectionsBackedUp: snapshot.CollectionsBackedUp,
		Timestamp:           snapshot.Timestamp,
		Version:             snapshot.Version,
		ArchivedPrevious:    archived,
		ExportURL:           snapshot.ExportURL,
	}
	s.publish(ctx, events.TopicBackupCreated, result)

	observability.Logger(ctx, s.logger).Info().
		Str("user_id", userID).
		Strs("collections", snapshot.CollectionsBackedUp).
		Bool("archived_previous", archived).
		Msg("backup created")

	return result, nil
}

// writeSnapshot archives the current latest snapshot, if any, and overwrites it in one
// transaction. A concurrent backup bumping the revision restarts the step. It
// returns the revision the new snapshot was written at.
func (s *backupService) writeSnapshot(ctx context.Context, record models.Record) (bool, int64, error) {
	for attempt := 1; ; attempt++ {
		archived := false
		expected := int64(0)
		err := s.store.RunTransaction(ctx, func(tx repository.RecordTx) error {
			archived = false
			expected = 0

			existing, err := tx.Get(ctx, models.CollectionBackups, record.ID)
			switch {
			case err == nil:
				archivedAt := s.now().UTC()
				archive := models.Record{
					Collection: models.CollectionBackupArchives,
					ID:         models.ArchiveID(existing.ID, archivedAt),
					UserID:     existing.UserID,
					Data:       models.CloneFields(existing.Data),
					Timestamp:  archivedAt,
				}
				archive.Data["archivedAt"] = archivedAt.Format(time.RFC3339Nano)
				if err := tx.Set(ctx, archive, repository.SetOptions{IfRevision: repository.IfRevision(0)}); err != nil {
					return err
				}
				expected = existing.Revision
				archived = true
			case errors.Is(err, repository.ErrRecordNotFound):
			default:
				return err
			}

			return tx.Set(ctx, record, repository.SetOptions{IfRevision: &expected})
		})
		if err == nil {
			if archived {
				observability.BackupArchives().Inc()
			}
			return archived, expected + 1, nil
		}

		if errors.Is(err, repository.ErrRevisionConflict) {
			if attempt < maxSnapshotWriteAttempts {
				observability.Logger(ctx, s.logger).Warn().Int("attempt", attempt).Str("backup_id", record.ID).Msg("backup snapshot changed concurrently, retrying")
				continue
			}
			return false, 0, ErrBackupConflict
		}
		return false, 0, fmt.Errorf("%w: write snapshot: %v", ErrBackendUnavailable, err)
	}
}

// attachExportURL merges the export link into the snapshot written at revision.
// A newer snapshot keeps its own link.
func (s *backupService) attachExportURL(ctx context.Context, record models.Record, revision int64, url string) {
	link := models.Record{
		Collection: record.Collection,
		ID:         record.ID,
		UserID:     record.UserID,
		Data:       map[string]interface{}{"exportUrl": url},
	}
	err := s.store.Set(ctx, link, repository.SetOptions{Merge: true, IfRevision: repository.IfRevision(revision)})
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).
			Str("backup_id", record.ID).
			Int64("revision", revision).
			Msg("failed to attach export url to snapshot")
	}
}

func (s *backupService) export(ctx context.Context, snapshot models.BackupSnapshot) string {
	if s.exporter == nil || !s.config.ExportEnabled {
		return ""
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		observability.BackupExports().WithLabelValues("failure").Inc()
		return ""
	}

	name := fmt.Sprintf("backup-%s-%d", snapshot.UserID, snapshot.Timestamp.UnixNano())
	url, err := s.exporter.UploadJSON(ctx, name, payload)
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Str("user_id", snapshot.UserID).Msg("snapshot export failed")
		observability.BackupExports().WithLabelValues("failure").Inc()
		return ""
	}

	observability.BackupExports().WithLabelValues("success").Inc()
	return url
}

func (s *backupService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		observability.Logger(ctx, s.logger).Debug().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func (s *backupService) LatestBackup(ctx context.Context, userID string) (dto.BackupSnapshotResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.BackupSnapshotResponse{}, ErrMissingUser
	}

	record, err := s.store.Get(ctx, models.CollectionBackups, models.LatestBackupID(userID))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return dto.BackupSnapshotResponse{}, ErrBackupNotFound
		}
		return dto.BackupSnapshotResponse{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	snapshot, err := models.SnapshotFromRecord(record)
	if err != nil {
		return dto.BackupSnapshotResponse{}, err
	}

	return dto.BackupSnapshotResponse{ID: record.ID, Revision: record.Revision, Snapshot: snapshot}, nil
}

func (s *backupService) ListArchives(ctx context.Context, userID string, limit int) ([]dto.ArchivedSnapshotResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	records, err := s.store.Query(ctx, repository.RecordQuery{
		Collection: models.CollectionBackupArchives,
		UserID:     userID,
		Limit:      clampLimit(limit, defaultArchiveListLimit, maxArchiveListLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	responses := make([]dto.ArchivedSnapshotResponse, 0, len(records))
	for _, record := range records {
		archived, err := models.ArchivedSnapshotFromRecord(record)
		if err != nil {
			observability.Logger(ctx, s.logger).Warn().Err(err).Str("archive_id", record.ID).Msg("skipping unreadable archive")
			continue
		}
		responses = append(responses, dto.NewArchivedSnapshotResponse(archived))
	}
	return responses, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingUser), errors.Is(err, ErrInvalidVersion):
		return "rejected"
	case errors.Is(err, ErrBackupConflict):
		return "conflict"
	default:
		return "failure"
	}
}
