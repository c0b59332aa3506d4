package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-resilience-api/internal/events"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

type stubExporter struct {
	names []string
	url   string
	err   error
}

func (e *stubExporter) UploadJSON(ctx context.Context, name string, payload []byte) (string, error) {
	e.names = append(e.names, name)
	if e.err != nil {
		return "", e.err
	}
	return e.url, nil
}

func newTestBackupService(store repository.RecordStore, recorder ActivityRecorder, publisher EventPublisher, config BackupConfig) *backupService {
	return NewBackupService(store, recorder, nil, publisher, config, testLogger()).(*backupService)
}

func TestBackupServiceCapturesOnlyPopulatedCollections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seedRecords(t, store, models.CollectionActivities, "user-1", 5, nil)
		seedRecords(t, store, models.CollectionActivities, "user-2", 3, nil)

		recorder := &stubRecorder{}
		svc := newTestBackupService(store, recorder, nil, BackupConfig{})

		result, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.True(t, result.Success)
		require.Equal(t, []string{models.CollectionActivities}, result.CollectionsBackedUp)
		require.Equal(t, models.CurrentVersion().Version, result.Version)
		require.False(t, result.ArchivedPrevious)

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, models.LatestBackupID("user-1"), latest.ID)
		require.Equal(t, int64(1), latest.Revision)
		require.Equal(t, []string{models.CollectionActivities}, latest.Snapshot.CollectionsBackedUp)
		require.Len(t, latest.Snapshot.Data[models.CollectionActivities], 5)
		require.NotContains(t, latest.Snapshot.Data, models.CollectionDocuments)

		require.Len(t, recorder.entries, 1)
		require.Equal(t, models.ActivitySystem, recorder.entries[0].kind)
		require.Equal(t, []string{models.CollectionActivities}, recorder.entries[0].metadata["collectionsBackedUp"].Strings())
	})
}

func TestBackupServiceCollectionsMatchPopulatedSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seedRecords(t, store, models.CollectionCalculations, "user-1", 2, nil)
		seedRecords(t, store, models.CollectionLeads, "user-1", 1, nil)
		seedRecords(t, store, models.CollectionProfiles, "someone-else", 1, nil)

		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})

		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{models.CollectionCalculations, models.CollectionLeads}, latest.Snapshot.CollectionsBackedUp)
	})
}

func TestBackupServiceCapsRecordsPerCollection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seeded := seedRecords(t, store, models.CollectionActivities, "user-1", 105, func(i int) map[string]interface{} {
			return map[string]interface{}{"message": fmt.Sprintf("entry %d", i)}
		})

		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})
		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		captured := latest.Snapshot.Data[models.CollectionActivities]
		require.Len(t, captured, 100)
		require.Equal(t, seeded[len(seeded)-1].ID, captured[0].ID)
	})
}

func TestBackupServiceArchivesPreviousSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seedRecords(t, store, models.CollectionActivities, "user-1", 2, nil)

		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})
		first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		second := first.Add(time.Hour)

		svc.now = fixedClock(first)
		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		previous, err := store.Get(context.Background(), models.CollectionBackups, models.LatestBackupID("user-1"))
		require.NoError(t, err)

		seedRecords(t, store, models.CollectionDocuments, "user-1", 1, nil)
		svc.now = fixedClock(second)
		result, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.True(t, result.ArchivedPrevious)

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), latest.Revision)
		require.True(t, latest.Snapshot.Timestamp.Equal(second))
		require.Contains(t, latest.Snapshot.CollectionsBackedUp, models.CollectionDocuments)

		archive, err := store.Get(context.Background(), models.CollectionBackupArchives, models.ArchiveID(previous.ID, second))
		require.NoError(t, err)
		require.Equal(t, second.Format(time.RFC3339Nano), archive.Data["archivedAt"])

		archivedFields := models.CloneFields(archive.Data)
		delete(archivedFields, "archivedAt")
		require.Equal(t, previous.Data, archivedFields)

		archives, err := svc.ListArchives(context.Background(), "user-1", 0)
		require.NoError(t, err)
		require.Len(t, archives, 1)
		require.True(t, archives[0].Timestamp.Equal(first))
		require.True(t, archives[0].ArchivedAt.Equal(second))
		require.Equal(t, 2, archives[0].RecordCount)
	})
}

func TestBackupServiceRequiresUser(t *testing.T) {
	store := newFaultyStore(repository.NewMemoryRecordStore())
	svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})

	_, err := svc.CreateBackup(context.Background(), "  ")
	require.ErrorIs(t, err, ErrMissingUser)
	require.Zero(t, store.writeCount())

	_, err = svc.LatestBackup(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingUser)
}

func TestBackupServiceSurfacesBackendFailures(t *testing.T) {
	inner := repository.NewMemoryRecordStore()
	seedRecords(t, inner, models.CollectionActivities, "user-1", 1, nil)

	store := newFaultyStore(inner)
	store.failQuery[models.CollectionCalculations] = true
	recorder := &stubRecorder{}
	svc := newTestBackupService(store, recorder, nil, BackupConfig{})

	_, err := svc.CreateBackup(context.Background(), "user-1")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Contains(t, err.Error(), models.CollectionCalculations)
	require.Empty(t, recorder.entries)

	_, err = svc.LatestBackup(context.Background(), "user-1")
	require.ErrorIs(t, err, ErrBackupNotFound)
}

func TestBackupServiceLogsCarryCorrelationID(t *testing.T) {
	store := newFaultyStore(repository.NewMemoryRecordStore())
	store.failQuery[models.CollectionActivities] = true

	var buf bytes.Buffer
	svc := NewBackupService(store, &stubRecorder{}, nil, nil, BackupConfig{}, zerolog.New(&buf))

	ctx := observability.WithCorrelationID(context.Background(), "req-42")
	_, err := svc.CreateBackup(ctx, "user-1")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Contains(t, buf.String(), `"correlation_id":"req-42"`)
	require.Contains(t, buf.String(), `"component":"backup_service"`)
}

func TestBackupServiceRetriesRevisionConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, inner repository.RecordStore) {
		seedRecords(t, inner, models.CollectionActivities, "user-1", 1, nil)

		store := newFaultyStore(inner)
		store.conflictTimes = 2
		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})

		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		store.conflictTimes = 3
		_, err = svc.CreateBackup(context.Background(), "user-1")
		require.ErrorIs(t, err, ErrBackupConflict)
	})
}

func TestBackupServiceRetriesLostFirstInsert(t *testing.T) {
	forEachBackend(t, func(t *testing.T, inner repository.RecordStore) {
		seedRecords(t, inner, models.CollectionActivities, "user-1", 1, nil)
		first := newTestBackupService(inner, &stubRecorder{}, nil, BackupConfig{})
		_, err := first.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		// The second backup believes it is the first, loses the insert and retries.
		store := &staleReadStore{RecordStore: inner, stale: 1}
		second := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})
		second.now = func() time.Time { return time.Now().Add(time.Second) }

		result, err := second.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.True(t, result.ArchivedPrevious)
		require.Equal(t, 1, countRecords(t, inner, models.CollectionBackupArchives, "user-1"))

		latest, err := second.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), latest.Revision)
	})
}

func TestBackupServiceFailsWhenTransactionFails(t *testing.T) {
	forEachBackend(t, func(t *testing.T, inner repository.RecordStore) {
		seedRecords(t, inner, models.CollectionActivities, "user-1", 1, nil)

		store := newFaultyStore(inner)
		store.failTx = true
		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})

		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.ErrorIs(t, err, ErrBackendUnavailable)
		require.Zero(t, countRecords(t, inner, models.CollectionBackups, "user-1"))
	})
}

func TestBackupServiceIgnoresActivityFailures(t *testing.T) {
	store := repository.NewMemoryRecordStore()
	seedRecords(t, store, models.CollectionProfiles, "user-1", 1, nil)

	recorder := &stubRecorder{err: errBackendDown}
	publisher := &stubPublisher{}
	svc := NewBackupService(store, recorder, nil, publisher, BackupConfig{}, testLogger())

	result, err := svc.CreateBackup(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, recorder.entries, 1)

	require.Len(t, publisher.events, 1)
	require.Equal(t, events.TopicBackupCreated, publisher.events[0].topic)
}

func TestBackupServiceExportsSnapshotAfterCommit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seedRecords(t, store, models.CollectionActivities, "user-1", 1, nil)

		exporter := &stubExporter{url: "https://res.cloudinary.com/demo/raw/upload/backup.json"}
		svc := NewBackupService(store, &stubRecorder{}, exporter, nil, BackupConfig{ExportEnabled: true}, testLogger()).(*backupService)
		at := time.Date(2024, 6, 1, 10, 0, 0, 123456789, time.UTC)
		svc.now = fixedClock(at)

		result, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, exporter.url, result.ExportURL)
		require.Equal(t, []string{fmt.Sprintf("backup-user-1-%d", at.UnixNano())}, exporter.names)

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Equal(t, exporter.url, latest.Snapshot.ExportURL)
		require.Equal(t, int64(2), latest.Revision)

		exporter.err = errBackendDown
		svc.now = fixedClock(at.Add(time.Millisecond))
		result, err = svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Empty(t, result.ExportURL)

		latest, err = svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Empty(t, latest.Snapshot.ExportURL)
	})
}

func TestBackupServiceSkipsExportWhenWriteFails(t *testing.T) {
	inner := repository.NewMemoryRecordStore()
	seedRecords(t, inner, models.CollectionActivities, "user-1", 1, nil)

	store := newFaultyStore(inner)
	store.failTx = true
	exporter := &stubExporter{url: "https://res.cloudinary.com/demo/raw/upload/backup.json"}
	svc := NewBackupService(store, &stubRecorder{}, exporter, nil, BackupConfig{ExportEnabled: true}, testLogger())

	_, err := svc.CreateBackup(context.Background(), "user-1")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Empty(t, exporter.names)
}

func TestBackupServiceExportLinkNeverOverwritesNewerSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store repository.RecordStore) {
		seedRecords(t, store, models.CollectionActivities, "user-1", 1, nil)
		svc := newTestBackupService(store, &stubRecorder{}, nil, BackupConfig{})

		_, err := svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)
		_, err = svc.CreateBackup(context.Background(), "user-1")
		require.NoError(t, err)

		stale, err := store.Get(context.Background(), models.CollectionBackups, models.LatestBackupID("user-1"))
		require.NoError(t, err)
		svc.attachExportURL(context.Background(), stale, 1, "https://example.com/old.json")

		latest, err := svc.LatestBackup(context.Background(), "user-1")
		require.NoError(t, err)
		require.Empty(t, latest.Snapshot.ExportURL)
		require.Equal(t, int64(2), latest.Revision)
	})
}
