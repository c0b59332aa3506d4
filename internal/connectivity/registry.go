package connectivity

import (
	"sync"

	"github.com/noah-isme/portal-resilience-api/internal/observability"
)

// Factory builds the monitor for one client.
type Factory func(clientID string) *Monitor

// Registry lazily creates and keeps one Monitor per client.
type Registry struct {
	factory Factory

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry returns an empty registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		monitors: make(map[string]*Monitor),
	}
}

// For returns the monitor of clientID, creating it on first use.
func (r *Registry) For(clientID string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.monitors[clientID]; ok {
		return m
	}
	m := r.factory(clientID)
	r.monitors[clientID] = m
	observability.ConnectivityTrackedClients().Set(float64(len(r.monitors)))
	return m
}

// Len reports how many clients are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// Close cancels pending reconnects of every tracked monitor.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		m.Close()
	}
}
