package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/concurrency-core/internal/core/provider"
	"github.com/iruldev/concurrency-core/internal/infra/config"
)

func TestProvider_Capabilities(t *testing.T) {
	t.Parallel()

	p := NewProvider("redis-fallback", &Client{})
	assert.Equal(t, "redis-fallback", p.ID())
	assert.False(t, p.SupportsTransactions())
	assert.False(t, p.SupportsReplication())

	var _ provider.Provider = p
}

func TestProvider_InitialHealthUnknown(t *testing.T) {
	t.Parallel()

	p := NewProvider("redis-fallback", &Client{})
	assert.False(t, p.IsHealthy())
	assert.True(t, p.LastHealthCheck().IsZero())
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	if !isRedisAvailable() {
		t.Skip("Redis not available, skipping integration-style provider test")
	}
	client, err := NewClient(config.RedisConfig{Host: "localhost", Port: 6379})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewProvider("redis-fallback", client)
}

func TestProvider_WriteReadDelete(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "core:test:key", []byte("value")))

	got, err := p.Read(ctx, "core:test:key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, p.Delete(ctx, "core:test:key"))
	_, err = p.Read(ctx, "core:test:key")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestProvider_WriteTTLExpires(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.WriteTTL(ctx, "core:test:ttl", []byte("value"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := p.Read(ctx, "core:test:ttl")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestProvider_CheckHealth(t *testing.T) {
	p := newTestProvider(t)
	assert.True(t, p.CheckHealth(context.Background()))
	assert.True(t, p.IsHealthy())
}
