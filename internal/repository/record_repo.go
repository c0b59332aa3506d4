package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

type gormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore constructs a record store backed by a SQL database.
func NewGormRecordStore(db *gorm.DB) RecordStore {
	return &gormRecordStore{db: db}
}

func (s *gormRecordStore) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	return gormQuery(s.db.WithContext(ctx), query)
}

func (s *gormRecordStore) Get(ctx context.Context, collection, id string) (models.Record, error) {
	return gormGet(s.db.WithContext(ctx), collection, id)
}

func (s *gormRecordStore) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return gormSet(tx, record, opts)
	})
}

func (s *gormRecordStore) Add(ctx context.Context, record models.Record) (models.Record, error) {
	return gormAdd(s.db.WithContext(ctx), record)
}

func (s *gormRecordStore) RunTransaction(ctx context.Context, fn func(tx RecordTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRecordTx{db: tx})
	})
}

func (s *gormRecordStore) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

type gormRecordTx struct {
	db *gorm.DB
}

func (t *gormRecordTx) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	return gormQuery(t.db.WithContext(ctx), query)
}

func (t *gormRecordTx) Get(ctx context.Context, collection, id string) (models.Record, error) {
	return gormGet(t.db.WithContext(ctx), collection, id)
}

func (t *gormRecordTx) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	return gormSet(t.db.WithContext(ctx), record, opts)
}

func (t *gormRecordTx) Add(ctx context.Context, record models.Record) (models.Record, error) {
	return gormAdd(t.db.WithContext(ctx), record)
}

func gormQuery(db *gorm.DB, query RecordQuery) ([]models.Record, error) {
	if query.Collection == "" {
		return nil, ErrInvalidQuery
	}

	q := db.Model(&models.Record{}).Where("collection = ?", query.Collection)
	if query.UserID != "" {
		q = q.Where("user_id = ?", query.UserID)
	}
	if query.After != nil {
		after := normalizeTime(query.After.Timestamp)
		q = q.Where("(recorded_at < ? OR (recorded_at = ? AND id < ?))", after, after, query.After.ID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var records []models.Record
	if err := q.Order("recorded_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

func gormGet(db *gorm.DB, collection, id string) (models.Record, error) {
	var record models.Record
	err := db.Where("collection = ? AND id = ?", collection, id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Record{}, ErrRecordNotFound
	}
	if err != nil {
		return models.Record{}, err
	}
	record.Timestamp = record.Timestamp.UTC()
	return record, nil
}

func gormSet(db *gorm.DB, record models.Record, opts SetOptions) error {
	existing, err := gormGet(db, record.Collection, record.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return err
	}
	if err := checkRevision(opts, exists, existing.Revision); err != nil {
		return err
	}

	if !exists {
		record.Data = models.CloneFields(record.Data)
		if record.Timestamp.IsZero() {
			record.Timestamp = storeNow()
		}
		record.Timestamp = normalizeTime(record.Timestamp)
		record.Revision = 1
		return gormCreate(db, &record)
	}

	data := models.CloneFields(record.Data)
	if opts.Merge {
		data = mergeFields(existing.Data, record.Data)
	}
	timestamp := existing.Timestamp
	if !record.Timestamp.IsZero() {
		timestamp = record.Timestamp
	}
	userID := record.UserID
	if userID == "" {
		userID = existing.UserID
	}

	result := db.Model(&models.Record{}).
		Where("collection = ? AND id = ? AND revision = ?", record.Collection, record.ID, existing.Revision).
		Updates(map[string]interface{}{
			"data":        data,
			"user_id":     userID,
			"recorded_at": normalizeTime(timestamp),
			"revision":    gorm.Expr("revision + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

func gormAdd(db *gorm.DB, record models.Record) (models.Record, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Data = models.CloneFields(record.Data)
	record.Timestamp = storeNow()
	record.Revision = 1
	if err := gormCreate(db, &record); err != nil {
		return models.Record{}, err
	}
	return record, nil
}

// gormCreate inserts a new document. Losing the insert race to a concurrent
// writer surfaces as ErrRevisionConflict; this relies on gorm.Config.TranslateError.
func gormCreate(db *gorm.DB, record *models.Record) error {
	err := db.Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrRevisionConflict
	}
	return err
}
