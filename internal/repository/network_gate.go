package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

const defaultMaxPendingPerUser = 500

// ErrQueueFull indicates a user's offline write queue reached its cap.
var ErrQueueFull = errors.New("offline write queue is full")

type pendingWrite struct {
	add    bool
	record models.Record
	opts   SetOptions
}

// NetworkGate wraps a RecordStore with a switchable network layer. The layer
// can be disabled for the whole store or for a single user. While a scope is
// disabled its reads and transactions fail with ErrOffline and its
// single-document writes are queued. Queued writes are replayed in order when
// the scope is enabled again, and the scope only reports online once its queue
// has drained, so later writes never overtake earlier ones.
type NetworkGate struct {
	inner      RecordStore
	logger     zerolog.Logger
	maxPending int

	// flushMu serialises replays; mu guards the fields below.
	flushMu     sync.Mutex
	mu          sync.Mutex
	online      bool
	offlineUser map[string]struct{}
	pending     []pendingWrite
}

// GateOption customises a NetworkGate.
type GateOption func(*NetworkGate)

// WithMaxPendingPerUser caps the number of queued writes held for one user.
func WithMaxPendingPerUser(n int) GateOption {
	return func(g *NetworkGate) {
		if n > 0 {
			g.maxPending = n
		}
	}
}

// NewNetworkGate wraps inner with an initially enabled network layer.
func NewNetworkGate(inner RecordStore, logger zerolog.Logger, opts ...GateOption) *NetworkGate {
	g := &NetworkGate{
		inner:       inner,
		logger:      logger.With().Str("component", "network_gate").Logger(),
		maxPending:  defaultMaxPendingPerUser,
		online:      true,
		offlineUser: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Online reports whether the store-wide network layer is enabled.
func (g *NetworkGate) Online() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

// UserOnline reports whether userID's records are reachable.
func (g *NetworkGate) UserOnline(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reachableLocked(userID)
}

// Pending reports the number of queued writes.
func (g *NetworkGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// PendingFor reports the number of queued writes owned by userID.
func (g *NetworkGate) PendingFor(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queuedLocked(userID)
}

// DisableNetwork stops all network activity; subsequent writes are queued.
func (g *NetworkGate) DisableNetwork(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.online {
		g.logger.Info().Msg("record store network disabled")
	}
	g.online = false
	return nil
}

// EnableNetwork flushes the queued writes of every user that is not disabled
// on its own, then marks the store online. A write rejected with a revision
// conflict is dropped; any other failure stops the flush, leaves the remaining
// writes queued and keeps the store offline.
func (g *NetworkGate) EnableNetwork(ctx context.Context) error {
	g.logger.Info().Int("pending", g.Pending()).Msg("record store network enabling")

	eligible := func(w pendingWrite) bool {
		_, off := g.offlineUser[w.record.UserID]
		return !off
	}
	return g.flush(ctx, eligible, func() { g.online = true })
}

// DisableNetworkFor takes userID's records offline without affecting other users.
func (g *NetworkGate) DisableNetworkFor(ctx context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.offlineUser[userID]; !ok {
		g.logger.Info().Str("user_id", userID).Msg("user network disabled")
	}
	g.offlineUser[userID] = struct{}{}
	return nil
}

// EnableNetworkFor flushes userID's queued writes and brings the user back online.
// While the store itself is offline the user flag is cleared but ErrOffline is
// returned and the writes stay queued for the store-wide flush.
func (g *NetworkGate) EnableNetworkFor(ctx context.Context, userID string) error {
	g.mu.Lock()
	if !g.online {
		delete(g.offlineUser, userID)
		g.mu.Unlock()
		return ErrOffline
	}
	g.mu.Unlock()

	eligible := func(w pendingWrite) bool { return w.record.UserID == userID }
	return g.flush(ctx, eligible, func() {
		if _, ok := g.offlineUser[userID]; ok {
			g.logger.Info().Str("user_id", userID).Msg("user network enabled")
		}
		delete(g.offlineUser, userID)
	})
}

// ForUser returns a network controller scoped to userID.
func (g *NetworkGate) ForUser(userID string) UserNetwork {
	return UserNetwork{gate: g, userID: userID}
}

// flush replays eligible queued writes in order. drained runs under mu once no
// eligible write is left, so a scope flips online atomically with its queue
// becoming empty.
func (g *NetworkGate) flush(ctx context.Context, eligible func(pendingWrite) bool, drained func()) error {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	for {
		g.mu.Lock()
		idx := -1
		for i, w := range g.pending {
			if eligible(w) {
				idx = i
				break
			}
		}
		if idx < 0 {
			drained()
			g.mu.Unlock()
			return nil
		}
		write := g.pending[idx]
		g.mu.Unlock()

		var err error
		if write.add {
			_, err = g.inner.Add(ctx, write.record)
		} else {
			err = g.inner.Set(ctx, write.record, write.opts)
		}

		if errors.Is(err, ErrRevisionConflict) {
			g.logger.Warn().
				Str("collection", write.record.Collection).
				Str("id", write.record.ID).
				Msg("dropping queued write after revision conflict")
		} else if err != nil {
			return fmt.Errorf("flush queued writes: %w", err)
		}

		g.mu.Lock()
		// Writes are only appended while the flush runs, so idx still points at write.
		g.pending = append(g.pending[:idx:idx], g.pending[idx+1:]...)
		g.mu.Unlock()
	}
}

func (g *NetworkGate) reachableLocked(userID string) bool {
	if !g.online {
		return false
	}
	_, off := g.offlineUser[userID]
	return !off
}

func (g *NetworkGate) queuedLocked(userID string) int {
	n := 0
	for _, w := range g.pending {
		if w.record.UserID == userID {
			n++
		}
	}
	return n
}

// mustQueueLocked reports whether a write for userID has to wait behind the queue.
func (g *NetworkGate) mustQueueLocked(userID string) bool {
	return !g.reachableLocked(userID) || g.queuedLocked(userID) > 0
}

// enqueue appends the write when its owner is offline or still has writes queued.
func (g *NetworkGate) enqueue(write pendingWrite) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	userID := write.record.UserID
	if !g.mustQueueLocked(userID) {
		return false, nil
	}
	if g.queuedLocked(userID) >= g.maxPending {
		return true, ErrQueueFull
	}
	g.pending = append(g.pending, write)
	return true, nil
}

func (g *NetworkGate) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	if !g.UserOnline(query.UserID) {
		return nil, ErrOffline
	}
	return g.inner.Query(ctx, query)
}

func (g *NetworkGate) Get(ctx context.Context, collection, id string) (models.Record, error) {
	if !g.Online() {
		return models.Record{}, ErrOffline
	}
	record, err := g.inner.Get(ctx, collection, id)
	if err == nil && !g.UserOnline(record.UserID) {
		return models.Record{}, ErrOffline
	}
	return record, err
}

func (g *NetworkGate) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	queued, err := g.enqueue(pendingWrite{record: record.Clone(), opts: opts})
	if queued || err != nil {
		return err
	}
	return g.inner.Set(ctx, record, opts)
}

// Add assigns the document ID up front so queued documents keep their identity.
// The timestamp of a queued document is provisional until it is flushed.
func (g *NetworkGate) Add(ctx context.Context, record models.Record) (models.Record, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	queued, err := g.enqueue(pendingWrite{add: true, record: record.Clone()})
	if err != nil {
		return models.Record{}, err
	}
	if queued {
		record.Timestamp = storeNow()
		return record, nil
	}
	return g.inner.Add(ctx, record)
}

func (g *NetworkGate) RunTransaction(ctx context.Context, fn func(tx RecordTx) error) error {
	if !g.Online() {
		return ErrOffline
	}
	return g.inner.RunTransaction(ctx, func(tx RecordTx) error {
		return fn(gatedTx{tx: tx, gate: g})
	})
}

func (g *NetworkGate) Ping(ctx context.Context) error {
	if !g.Online() {
		return ErrOffline
	}
	return g.inner.Ping(ctx)
}

// gatedTx rejects transactional access to records of a disabled user.
type gatedTx struct {
	tx   RecordTx
	gate *NetworkGate
}

func (t gatedTx) Query(ctx context.Context, query RecordQuery) ([]models.Record, error) {
	if !t.gate.UserOnline(query.UserID) {
		return nil, ErrOffline
	}
	return t.tx.Query(ctx, query)
}

func (t gatedTx) Get(ctx context.Context, collection, id string) (models.Record, error) {
	record, err := t.tx.Get(ctx, collection, id)
	if err == nil && !t.gate.UserOnline(record.UserID) {
		return models.Record{}, ErrOffline
	}
	return record, err
}

func (t gatedTx) Set(ctx context.Context, record models.Record, opts SetOptions) error {
	if t.blocked(record.UserID) {
		return ErrOffline
	}
	return t.tx.Set(ctx, record, opts)
}

func (t gatedTx) Add(ctx context.Context, record models.Record) (models.Record, error) {
	if t.blocked(record.UserID) {
		return models.Record{}, ErrOffline
	}
	return t.tx.Add(ctx, record)
}

func (t gatedTx) blocked(userID string) bool {
	t.gate.mu.Lock()
	defer t.gate.mu.Unlock()
	return t.gate.mustQueueLocked(userID)
}

// UserNetwork is the NetworkController and reachability check of one user's
// slice of the gate.
type UserNetwork struct {
	gate   *NetworkGate
	userID string
}

func (n UserNetwork) DisableNetwork(ctx context.Context) error {
	return n.gate.DisableNetworkFor(ctx, n.userID)
}

func (n UserNetwork) EnableNetwork(ctx context.Context) error {
	return n.gate.EnableNetworkFor(ctx, n.userID)
}

// Ping reaches the backing store on behalf of the user.
func (n UserNetwork) Ping(ctx context.Context) error {
	if !n.gate.UserOnline(n.userID) {
		return ErrOffline
	}
	return n.gate.inner.Ping(ctx)
}
