package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

var errBackendDown = errors.New("backend down")

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// faultyStore fails selected operations of the wrapped store.
type faultyStore struct {
	repository.RecordStore

	mu            sync.Mutex
	failQuery     map[string]bool
	failAdd       map[string]bool
	failSet       map[string]bool
	failTx        bool
	writes        int
	conflictTimes int
}

func newFaultyStore(inner repository.RecordStore) *faultyStore {
	return &faultyStore{
		RecordStore: inner,
		failQuery:   map[string]bool{},
		failAdd:     map[string]bool{},
		failSet:     map[string]bool{},
	}
}

func (f *faultyStore) Query(ctx context.Context, query repository.RecordQuery) ([]models.Record, error) {
	f.mu.Lock()
	fail := f.failQuery[query.Collection]
	f.mu.Unlock()
	if fail {
		return nil, errBackendDown
	}
	return f.RecordStore.Query(ctx, query)
}

func (f *faultyStore) Set(ctx context.Context, record models.Record, opts repository.SetOptions) error {
	f.mu.Lock()
	fail := f.failSet[record.Collection]
	f.writes++
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return f.RecordStore.Set(ctx, record, opts)
}

func (f *faultyStore) Add(ctx context.Context, record models.Record) (models.Record, error) {
	f.mu.Lock()
	fail := f.failAdd[record.Collection]
	f.writes++
	f.mu.Unlock()
	if fail {
		return models.Record{}, errBackendDown
	}
	return f.RecordStore.Add(ctx, record)
}

func (f *faultyStore) RunTransaction(ctx context.Context, fn func(tx repository.RecordTx) error) error {
	f.mu.Lock()
	fail := f.failTx
	conflict := f.conflictTimes > 0
	if conflict {
		f.conflictTimes--
	}
	f.writes++
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	if conflict {
		return repository.ErrRevisionConflict
	}
	return f.RecordStore.RunTransaction(ctx, fn)
}

func (f *faultyStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type recordedActivity struct {
	userID   string
	kind     models.ActivityType
	message  string
	metadata models.Metadata
}

type stubRecorder struct {
	mu      sync.Mutex
	entries []recordedActivity
	err     error
}

func (s *stubRecorder) Record(ctx context.Context, userID string, activityType models.ActivityType, message string, metadata models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, recordedActivity{userID: userID, kind: activityType, message: message, metadata: metadata})
	return s.err
}

type publishedEvent struct {
	topic   string
	payload interface{}
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *stubPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, payload: payload})
	return nil
}

func seedRecords(t *testing.T, store repository.RecordStore, collection, userID string, n int, data func(i int) map[string]interface{}) []models.Record {
	t.Helper()
	seeded := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		fields := map[string]interface{}{"userId": userID}
		if data != nil {
			for k, v := range data(i) {
				fields[k] = v
			}
		}
		record, err := store.Add(context.Background(), models.Record{
			Collection: collection,
			UserID:     userID,
			Data:       fields,
		})
		require.NoError(t, err)
		seeded = append(seeded, record)
	}
	return seeded
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// forEachBackend runs fn against a fresh store of every supported backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, store repository.RecordStore)) {
	backends := []struct {
		name string
		open func(t *testing.T) repository.RecordStore
	}{
		{name: "memory", open: func(*testing.T) repository.RecordStore { return repository.NewMemoryRecordStore() }},
		{name: "gorm", open: openGormStore},
	}
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			fn(t, backend.open(t))
		})
	}
}

func openGormStore(t *testing.T) repository.RecordStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Record{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewGormRecordStore(db)
}

func countRecords(t *testing.T, store repository.RecordStore, collection, userID string) int {
	t.Helper()
	records, err := store.Query(context.Background(), repository.RecordQuery{Collection: collection, UserID: userID})
	require.NoError(t, err)
	return len(records)
}

// staleReadStore hides the latest backup from the first transaction, as if a
// concurrent writer committed it right after the transaction took its snapshot.
type staleReadStore struct {
	repository.RecordStore

	mu    sync.Mutex
	stale int
}

func (s *staleReadStore) RunTransaction(ctx context.Context, fn func(tx repository.RecordTx) error) error {
	s.mu.Lock()
	stale := s.stale > 0
	if stale {
		s.stale--
	}
	s.mu.Unlock()

	return s.RecordStore.RunTransaction(ctx, func(tx repository.RecordTx) error {
		if stale {
			return fn(staleReadTx{RecordTx: tx})
		}
		return fn(tx)
	})
}

type staleReadTx struct {
	repository.RecordTx
}

func (tx staleReadTx) Get(ctx context.Context, collection, id string) (models.Record, error) {
	if collection == models.CollectionBackups {
		return models.Record{}, repository.ErrRecordNotFound
	}
	return tx.RecordTx.Get(ctx, collection, id)
}
