package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPooler struct {
	pool *pgxpool.Pool
}

func (m *mockPooler) Ping(ctx context.Context) error { return nil }
func (m *mockPooler) Close()                         {}
func (m *mockPooler) Pool() *pgxpool.Pool            { return m.pool }

// TestDBMetrics_RegistersAndGathersWithoutPanic exercises the path
// internal/infra/fx actually wires: DBMetrics is registered into the core's
// shared Prometheus registry alongside the scheduler/bus collectors, and a
// disconnected primary pool (nil *pgxpool.Pool) must not blow up Gather.
func TestDBMetrics_RegistersAndGathersWithoutPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewDBMetrics(&mockPooler{pool: nil}, logger)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "a nil pool has no pgxpool.Stat to report")
}

// TestDBMetrics_DoubleRegistrationRejected confirms DBMetrics behaves like any
// other prometheus.Collector under the core's shared registry: registering
// the same collector identity twice must fail loudly rather than silently
// double-count.
func TestDBMetrics_DoubleRegistrationRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewDBMetrics(&mockPooler{pool: nil}, logger)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))
	assert.Error(t, reg.Register(m))
}
