package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iruldev/concurrency-core/internal/core/provider"
)

// DefaultTTL is applied to writes that don't carry an explicit TTL via
// WriteTTL. The resilient data I/O layer writes through Write, so its
// fallback writes always carry DefaultTTL; no per-intent TTL is applied.
const DefaultTTL = 5 * time.Minute

// Provider is the non-transactional, TTL-aware fallback storage backend. It
// never blocks a write on replication and treats every key as expendable:
// losing a key on a Redis restart is an accepted tradeoff for its speed.
type Provider struct {
	id     string
	client *Client

	mu        sync.RWMutex
	healthy   bool
	checkedAt time.Time

	defaultTTL time.Duration
}

// NewProvider constructs a redis Provider over an already-connected Client.
func NewProvider(id string, client *Client) *Provider {
	return &Provider{id: id, client: client, defaultTTL: DefaultTTL}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Read(ctx context.Context, key string) ([]byte, error) {
	val, err := p.client.Client().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("redis provider: read %q: %w", key, err)
	}
	return val, nil
}

// Write stores value under key using the provider's default TTL. Use
// WriteTTL when the caller's intent specifies a different cache lifetime.
func (p *Provider) Write(ctx context.Context, key string, value []byte) error {
	return p.WriteTTL(ctx, key, value, p.defaultTTL)
}

// WriteTTL stores value under key with an explicit expiry. A zero ttl
// means the key never expires.
func (p *Provider) WriteTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.client.Client().Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis provider: write %q: %w", key, err)
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := p.client.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis provider: delete %q: %w", key, err)
	}
	return nil
}

func (p *Provider) CheckHealth(ctx context.Context) bool {
	err := p.client.Ping(ctx)
	healthy := err == nil
	p.mu.Lock()
	p.healthy = healthy
	p.checkedAt = time.Now()
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

func (p *Provider) SupportsTransactions() bool { return false }
func (p *Provider) SupportsReplication() bool  { return false }

var _ provider.Provider = (*Provider)(nil)
