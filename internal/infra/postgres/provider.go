package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iruldev/concurrency-core/internal/core/provider"
)

// kvSchema is applied by Provider before every Write and after every
// successful CheckHealth (CREATE TABLE IF NOT EXISTS). It
// keeps the transactional, replicated key/value surface the data I/O layer
// needs without requiring an external migration tool.
const kvSchema = `
CREATE TABLE IF NOT EXISTS resilient_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Provider is the transactional, replicating primary storage backend,
// backed by a ResilientPool. Writes run the schema statement and then a
// single upsert; reads and deletes are single statements, so SupportsTransactions
// reflects single-statement atomicity rather than multi-statement sessions.
type Provider struct {
	id      string
	pool    *ResilientPool
	checker *DatabaseHealthChecker

	mu        sync.RWMutex
	healthy   bool
	checkedAt time.Time
	latency   time.Duration
}

// NewProvider constructs a postgres Provider over an already-running
// ResilientPool. The schema is ensured on each Write and each successful
// CheckHealth rather than here, so construction never blocks on the database. CheckHealth
// delegates its probe to a DatabaseHealthChecker built over the same pool, so
// the breaker health path and an operator's own readiness probe agree on what
// "healthy" means for this provider.
func NewProvider(id string, pool *ResilientPool) *Provider {
	return &Provider{id: id, pool: pool, checker: NewDatabaseHealthChecker(pool)}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) ensureSchema(ctx context.Context) error {
	pgxp := p.pool.Pool()
	if pgxp == nil {
		return errors.New("postgres provider: pool unavailable")
	}
	ctx, cancel := QueryContext(ctx, 0)
	defer cancel()
	_, err := pgxp.Exec(ctx, kvSchema)
	return err
}

func (p *Provider) Read(ctx context.Context, key string) ([]byte, error) {
	pgxp := p.pool.Pool()
	if pgxp == nil {
		return nil, errors.New("postgres provider: pool unavailable")
	}
	ctx, cancel := QueryContext(ctx, 0)
	defer cancel()
	var value []byte
	err := pgxp.QueryRow(ctx, `SELECT value FROM resilient_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("postgres provider: read %q: %w", key, err)
	}
	return value, nil
}

func (p *Provider) Write(ctx context.Context, key string, value []byte) error {
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("postgres provider: ensure schema: %w", err)
	}
	pgxp := p.pool.Pool()
	if pgxp == nil {
		return errors.New("postgres provider: pool unavailable")
	}
	ctx, cancel := QueryContext(ctx, 0)
	defer cancel()
	_, err := pgxp.Exec(ctx, `
		INSERT INTO resilient_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("postgres provider: write %q: %w", key, err)
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	pgxp := p.pool.Pool()
	if pgxp == nil {
		return errors.New("postgres provider: pool unavailable")
	}
	ctx, cancel := QueryContext(ctx, 0)
	defer cancel()
	_, err := pgxp.Exec(ctx, `DELETE FROM resilient_kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres provider: delete %q: %w", key, err)
	}
	return nil
}

func (p *Provider) CheckHealth(ctx context.Context) bool {
	status, latency, err := p.checker.CheckHealth(ctx)
	healthy := status == "healthy" && err == nil
	if healthy {
		_ = p.ensureSchema(ctx)
	}
	p.mu.Lock()
	p.healthy = healthy
	p.checkedAt = time.Now()
	p.latency = latency
	p.mu.Unlock()
	return healthy
}

func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) LastHealthCheck() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checkedAt
}

// LastHealthCheckLatency returns how long the most recent CheckHealth probe
// took, as measured by the underlying DatabaseHealthChecker.
func (p *Provider) LastHealthCheckLatency() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latency
}

func (p *Provider) SupportsTransactions() bool { return true }
func (p *Provider) SupportsReplication() bool  { return true }

var _ provider.Provider = (*Provider)(nil)
