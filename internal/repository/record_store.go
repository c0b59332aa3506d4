package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

var (
	// ErrRecordNotFound indicates the requested document does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRevisionConflict indicates a conditional write lost against a concurrent writer.
	ErrRevisionConflict = errors.New("record revision conflict")
	// ErrOffline indicates the store's network layer is disabled.
	ErrOffline = errors.New("record store is offline")
	// ErrInvalidQuery indicates a query without a collection.
	ErrInvalidQuery = errors.New("query requires a collection")
)

// Cursor marks the last record of a page for keyset pagination.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// CursorOf returns the cursor positioned after the given record.
func CursorOf(record models.Record) *Cursor {
	return &Cursor{Timestamp: record.Timestamp, ID: record.ID}
}

// RecordQuery selects records of one collection, newest first.
type RecordQuery struct {
	Collection string
	UserID     string
	Limit      int
	After      *Cursor
}

// SetOptions tunes single-document writes.
type SetOptions struct {
	// Merge overlays the given fields onto the stored document instead of replacing it.
	Merge bool
	// IfRevision makes the write conditional on the stored revision. Zero means the
	// document must not exist yet.
	IfRevision *int64
}

// RecordReader reads documents.
type RecordReader interface {
	Query(ctx context.Context, query RecordQuery) ([]models.Record, error)
	Get(ctx context.Context, collection, id string) (models.Record, error)
}

// RecordWriter writes documents. Timestamps on Add are always assigned by the store.
type RecordWriter interface {
	Set(ctx context.Context, record models.Record, opts SetOptions) error
	Add(ctx context.Context, record models.Record) (models.Record, error)
}

// RecordTx is the view of the store available inside a transaction.
type RecordTx interface {
	RecordReader
	RecordWriter
}

// RecordStore is the query-capable document store backing the portal.
type RecordStore interface {
	RecordTx
	// RunTransaction applies every write made through tx atomically, or none of them.
	RunTransaction(ctx context.Context, fn func(tx RecordTx) error) error
	// Ping issues a lightweight read used as a reachability probe.
	Ping(ctx context.Context) error
}

// NetworkController toggles the store client's network layer.
type NetworkController interface {
	EnableNetwork(ctx context.Context) error
	DisableNetwork(ctx context.Context) error
}

// IfRevision is a helper for building conditional SetOptions.
func IfRevision(revision int64) *int64 {
	return &revision
}

// storeClock hands out strictly increasing timestamps so documents written in the
// same microsecond still sort deterministically.
var storeClock = &monotonicClock{}

type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := normalizeTime(time.Now())
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

func storeNow() time.Time {
	return storeClock.now()
}

// normalizeTime keeps timestamps at microsecond precision so cursors survive a
// round trip through postgres.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func mergeFields(base, overlay map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}(models.CloneFields(base))
	for key, value := range overlay {
		nested, ok := value.(map[string]interface{})
		if existing, isMap := out[key].(map[string]interface{}); ok && isMap {
			out[key] = mergeFields(existing, nested)
			continue
		}
		out[key] = value
	}
	return out
}

func checkRevision(opts SetOptions, exists bool, current int64) error {
	if opts.IfRevision == nil {
		return nil
	}
	if !exists {
		if *opts.IfRevision != 0 {
			return ErrRevisionConflict
		}
		return nil
	}
	if *opts.IfRevision != current {
		return ErrRevisionConflict
	}
	return nil
}
