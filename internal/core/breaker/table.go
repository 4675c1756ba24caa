// Package breaker keys a circuit breaker per storage provider so a failing
// backend can trip independently of its siblings.
package breaker

import (
	"context"
	"sync"

	"github.com/iruldev/concurrency-core/internal/coreerr"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
)

// Table is a concurrency-safe registry of one resilience.CircuitBreaker per
// provider id, created lazily on first use.
type Table struct {
	mu   sync.RWMutex
	cfg  resilience.CircuitBreakerConfig
	bks  map[string]resilience.CircuitBreaker
	opts []resilience.CircuitBreakerOption
}

// NewTable builds a Table that creates every provider's breaker with cfg.
func NewTable(cfg resilience.CircuitBreakerConfig, opts ...resilience.CircuitBreakerOption) *Table {
	return &Table{
		cfg:  cfg,
		bks:  make(map[string]resilience.CircuitBreaker),
		opts: opts,
	}
}

// For returns the breaker for providerID, creating it on first access.
func (t *Table) For(providerID string) resilience.CircuitBreaker {
	t.mu.RLock()
	b, ok := t.bks[providerID]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bks[providerID]; ok {
		return b
	}
	b = resilience.NewCircuitBreaker(providerID, t.cfg, t.opts...)
	t.bks[providerID] = b
	return b
}

// Execute runs fn through providerID's breaker, translating a tripped
// circuit into the core's ProviderUnavailable error.
func (t *Table) Execute(ctx context.Context, providerID string, fn func() (any, error)) (any, error) {
	result, err := t.For(providerID).Execute(ctx, fn)
	if err != nil {
		if re, ok := err.(*resilience.ResilienceError); ok && re.Code == resilience.ErrCodeCircuitOpen {
			return nil, coreerr.NewProviderUnavailableError(providerID, err)
		}
	}
	return result, err
}

// State reports the current FSM state of providerID's breaker without
// creating it if it doesn't exist yet.
func (t *Table) State(providerID string) (resilience.State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bks[providerID]
	if !ok {
		return "", false
	}
	return b.State(), true
}

// Snapshot returns every known provider id mapped to its current breaker
// state, for status reporting.
func (t *Table) Snapshot() map[string]resilience.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]resilience.State, len(t.bks))
	for id, b := range t.bks {
		out[id] = b.State()
	}
	return out
}
