package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

type memoryCollections map[string]map[string]models.Record

// MemoryRecordStore keeps every collection in process memory. It backs local
// development and tests; transactions serialise on a single lock.
type MemoryRecordStore struct {
	mu   sync.RWMutex
	data memoryCollections
}

// NewMemoryRecordStore constructs an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{data: make(memoryCollections)}
}

func (s *MemoryRecordStore) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.query(query)
}

func (s *MemoryRecordStore) Get(ctx context.Context, collection, id string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.get(collection, id)
}

func (s *MemoryRecordStore) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.set(record, opts)
}

func (s *MemoryRecordStore) Add(ctx context.Context, record models.Record) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.add(record), nil
}

// RunTransaction stages writes on a copy of the store and swaps it in on success.
// fn must only use tx; calling back into s would deadlock.
func (s *MemoryRecordStore) RunTransaction(ctx context.Context, fn func(tx RecordTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	if err := fn(&memoryRecordTx{data: staged}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

func (s *MemoryRecordStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports the number of documents in a collection.
func (s *MemoryRecordStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

type memoryRecordTx struct {
	data memoryCollections
}

func (t *memoryRecordTx) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.data.query(query)
}

func (t *memoryRecordTx) Get(ctx context.Context, collection, id string) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	return t.data.get(collection, id)
}

func (t *memoryRecordTx) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.data.set(record, opts)
}

func (t *memoryRecordTx) Add(ctx context.Context, record models.Record) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	return t.data.add(record), nil
}

func (c memoryCollections) clone() memoryCollections {
	out := make(memoryCollections, len(c))
	for name, docs := range c {
		copied := make(map[string]models.Record, len(docs))
		for id, record := range docs {
			copied[id] = record.Clone()
		}
		out[name] = copied
	}
	return out
}

func (c memoryCollections) query(query RecordQuery) ([]models.Record, error) {
	if query.Collection == "" {
		return nil, ErrInvalidQuery
	}

	matched := make([]models.Record, 0)
	for _, record := range c[query.Collection] {
		if query.UserID != "" && record.UserID != query.UserID {
			continue
		}
		if query.After != nil && !isBefore(record, *query.After) {
			continue
		}
		matched = append(matched, record.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// isBefore reports whether record sorts after the cursor in newest-first order.
func isBefore(record models.Record, cursor Cursor) bool {
	after := normalizeTime(cursor.Timestamp)
	if record.Timestamp.Before(after) {
		return true
	}
	return record.Timestamp.Equal(after) && record.ID < cursor.ID
}

func (c memoryCollections) get(collection, id string) (models.Record, error) {
	record, ok := c[collection][id]
	if !ok {
		return models.Record{}, ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (c memoryCollections) set(record models.Record, opts SetOptions) error {
	existing, exists := c[record.Collection][record.ID]
	if err := checkRevision(opts, exists, existing.Revision); err != nil {
		return err
	}

	stored := record.Clone()
	if exists {
		if opts.Merge {
			stored.Data = mergeFields(existing.Data, record.Data)
		}
		if stored.Timestamp.IsZero() {
			stored.Timestamp = existing.Timestamp
		}
		if stored.UserID == "" {
			stored.UserID = existing.UserID
		}
		stored.Revision = existing.Revision + 1
	} else {
		if stored.Timestamp.IsZero() {
			stored.Timestamp = storeNow()
		}
		stored.Revision = 1
	}
	stored.Timestamp = normalizeTime(stored.Timestamp)

	c.put(stored)
	return nil
}

func (c memoryCollections) add(record models.Record) models.Record {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Timestamp = storeNow()
	stored.Revision = 1
	c.put(stored)
	return stored.Clone()
}

func (c memoryCollections) put(record models.Record) {
	docs, ok := c[record.Collection]
	if !ok {
		docs = make(map[string]models.Record)
		c[record.Collection] = docs
	}
	docs[record.ID] = record
}
