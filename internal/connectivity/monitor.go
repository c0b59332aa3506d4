// Package connectivity tracks whether a portal client is online and whether
// the record store backend is reachable, and drives bounded reconnection.
// Each client gets its own Monitor; Registry hands them out by client id.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/portal-resilience-api/internal/events"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
)

const subscriberBufferSize = 8

// ErrProbeTimeout indicates the reachability probe did not settle within the timeout.
var ErrProbeTimeout = errors.New("reachability probe timed out")

// Prober issues a lightweight read against the backend.
type Prober interface {
	Ping(ctx context.Context) error
}

// NetworkController toggles the backend client's network layer.
type NetworkController interface {
	EnableNetwork(ctx context.Context) error
	DisableNetwork(ctx context.Context) error
}

// EventPublisher receives every state change.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Scheduler runs fn after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

// Event is the payload published on every state change.
type Event struct {
	Scope string `json:"scope,omitempty"`
	State
}

// State is the observable connectivity state.
type State struct {
	IsOnline              bool       `json:"isOnline"`
	HasConnectivityIssues bool       `json:"hasConnectivityIssues"`
	ReconnectAttempts     int        `json:"reconnectAttempts"`
	MaxReconnectAttempts  int        `json:"maxReconnectAttempts"`
	Reconnecting          bool       `json:"reconnecting"`
	LastProbeAt           *time.Time `json:"lastProbeAt,omitempty"`
	LastError             string     `json:"lastError,omitempty"`
}

// Config tunes the monitor.
type Config struct {
	InitiallyOnline      bool
	ProbeTimeout         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	// ProbeInterval enables periodic probing from Start when positive.
	ProbeInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithScheduler replaces the timer used to reschedule reconnect probes.
func WithScheduler(s Scheduler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.schedule = s
		}
	}
}

// WithPublisher forwards state changes to an event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// WithScope ties the monitor to one client. The scope is logged and attached to
// published events.
func WithScope(clientID string) Option {
	return func(m *Monitor) {
		m.scope = clientID
	}
}

// WithoutGauges keeps the monitor out of the process-wide connectivity gauges.
func WithoutGauges() Option {
	return func(m *Monitor) {
		m.gauges = false
	}
}

// WithClock replaces the clock used to stamp probes.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor owns the connectivity state for one portal client.
type Monitor struct {
	network   NetworkController
	prober    Prober
	cfg       Config
	logger    zerolog.Logger
	tracer    trace.Tracer
	schedule  Scheduler
	publisher EventPublisher
	now       func() time.Time
	scope     string
	gauges    bool

	mu          sync.Mutex
	state       State
	generation  uint64
	cancelRetry func() bool

	subMu       sync.RWMutex
	subscribers map[chan State]struct{}
}

// New constructs a monitor. The initial online flag comes from cfg.InitiallyOnline.
func New(network NetworkController, prober Prober, cfg Config, logger zerolog.Logger, opts ...Option) *Monitor {
	cfg.applyDefaults()

	m := &Monitor{
		network: network,
		prober:  prober,
		cfg:     cfg,
		logger:  logger.With().Str("component", "connectivity_monitor").Logger(),
		tracer:  observability.Tracer("connectivity"),
		schedule: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
		now:         time.Now,
		gauges:      true,
		subscribers: make(map[chan State]struct{}),
		state: State{
			IsOnline:             cfg.InitiallyOnline,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scope != "" {
		m.logger = m.logger.With().Str("user_id", m.scope).Logger()
	}

	m.recordGauges(m.state)
	return m
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers an observer. The current state is delivered first; the
// returned function unsubscribes and closes the channel. Slow observers miss updates.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBufferSize)
	ch <- m.State()

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// HandleOffline reacts to the client reporting it went offline.
func (m *Monitor) HandleOffline(ctx context.Context) {
	m.mu.Lock()
	m.state.IsOnline = false
	m.state.Reconnecting = false
	m.generation++
	m.stopRetryLocked()
	m.mu.Unlock()

	if err := m.network.DisableNetwork(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to disable record store network")
	}

	m.logger.Info().Msg("client offline")
	m.notify(ctx)
}

// HandleOnline reacts to the client reporting it is back online and starts the
// reconnection procedure. The first probe runs before HandleOnline returns.
func (m *Monitor) HandleOnline(ctx context.Context) {
	m.mu.Lock()
	m.state.IsOnline = true
	m.state.ReconnectAttempts = 0
	m.state.Reconnecting = true
	m.generation++
	generation := m.generation
	m.stopRetryLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("client online")
	m.notify(ctx)
	m.reconnect(context.WithoutCancel(ctx), generation)
}

// CheckConnectivity runs a single reachability probe and records its outcome.
// Failures only update state; the returned error is informational.
func (m *Monitor) CheckConnectivity(ctx context.Context) error {
	err := m.probe(ctx)

	m.mu.Lock()
	m.applyProbeLocked(err)
	if err == nil {
		m.state.ReconnectAttempts = 0
		m.state.Reconnecting = false
		m.stopRetryLocked()
	}
	m.mu.Unlock()

	m.notify(ctx)
	return err
}

// Start runs periodic probes while the client is online until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m.cfg.ProbeInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.State().IsOnline {
					continue
				}
				if err := m.CheckConnectivity(ctx); err != nil {
					m.logger.Debug().Err(err).Msg("periodic reachability probe failed")
				}
			}
		}
	}()
}

// Close cancels any scheduled reconnect probe.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopRetryLocked()
}

func (m *Monitor) reconnect(ctx context.Context, generation uint64) {
	if err := m.network.EnableNetwork(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to enable record store network")
	}

	err := m.probe(ctx)

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return
	}

	m.applyProbeLocked(err)
	if err == nil {
		m.state.ReconnectAttempts = 0
		m.state.Reconnecting = false
		m.logger.Info().Msg("backend reachable again")
	} else {
		m.state.ReconnectAttempts++
		if m.state.ReconnectAttempts < m.cfg.MaxReconnectAttempts {
			m.state.Reconnecting = true
			m.cancelRetry = m.schedule(m.cfg.ReconnectDelay, func() {
				m.reconnect(ctx, generation)
			})
			m.logger.Warn().Err(err).
				Int("attempt", m.state.ReconnectAttempts).
				Dur("retry_in", m.cfg.ReconnectDelay).
				Msg("reconnect probe failed")
		} else {
			m.state.Reconnecting = false
			m.logger.Warn().Err(err).
				Int("attempts", m.state.ReconnectAttempts).
				Msg("reconnect attempts exhausted")
		}
	}
	m.mu.Unlock()

	m.notify(ctx)
}

// probe races the backend read against the probe timeout.
func (m *Monitor) probe(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "connectivity.probe",
		trace.WithAttributes(attribute.Int64("probe.timeout_ms", m.cfg.ProbeTimeout.Milliseconds())))
	defer span.End()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.prober.Ping(probeCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-probeCtx.Done():
		err = probeCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrProbeTimeout
		}
	}

	switch {
	case err == nil:
		observability.ConnectivityProbes().WithLabelValues("success").Inc()
		span.SetStatus(codes.Ok, "reachable")
	case errors.Is(err, ErrProbeTimeout):
		observability.ConnectivityProbes().WithLabelValues("timeout").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
	default:
		observability.ConnectivityProbes().WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreachable")
	}
	return err
}

func (m *Monitor) applyProbeLocked(err error) {
	at := m.now().UTC()
	m.state.LastProbeAt = &at
	if err == nil {
		m.state.HasConnectivityIssues = false
		m.state.LastError = ""
		return
	}
	m.state.HasConnectivityIssues = true
	m.state.LastError = err.Error()
}

func (m *Monitor) stopRetryLocked() {
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
}

func (m *Monitor) notify(ctx context.Context) {
	state := m.State()
	m.recordGauges(state)

	m.subMu.RLock()
	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
	m.subMu.RUnlock()

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, events.TopicConnectivity, Event{Scope: m.scope, State: state}); err != nil {
			m.logger.Warn().Err(err).Msg("failed to publish connectivity state")
		}
	}
}

func (m *Monitor) recordGauges(state State) {
	if !m.gauges {
		return
	}
	observability.ConnectivityOnline().Set(boolGauge(state.IsOnline))
	observability.ConnectivityIssues().Set(boolGauge(state.HasConnectivityIssues))
	observability.ConnectivityReconnectAttempts().Set(float64(state.ReconnectAttempts))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
