package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/concurrency-core/internal/coreerr"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
)

func testCfg() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Second,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 2,
	}
}

func TestTable_ForCreatesAndReuses(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testCfg())
	b1 := tbl.For("postgres-primary")
	b2 := tbl.For("postgres-primary")
	assert.Same(t, b1, b2)

	b3 := tbl.For("redis-fallback")
	assert.NotEqual(t, b1.Name(), b3.Name())
}

func TestTable_ExecuteTripsAndTranslatesError(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testCfg())
	failing := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := tbl.Execute(context.Background(), "flaky", func() (any, error) {
			return nil, failing
		})
		assert.ErrorIs(t, err, failing)
	}

	state, ok := tbl.State("flaky")
	require.True(t, ok)
	assert.Equal(t, resilience.StateOpen, state)

	_, err := tbl.Execute(context.Background(), "flaky", func() (any, error) {
		return "unreached", nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.ErrProviderUnavailable)
}

func TestTable_Snapshot(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testCfg())
	tbl.For("a")
	tbl.For("b")

	snap := tbl.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, resilience.StateClosed, snap["a"])
	assert.Equal(t, resilience.StateClosed, snap["b"])
}

func TestTable_StateUnknownProvider(t *testing.T) {
	t.Parallel()

	tbl := NewTable(testCfg())
	_, ok := tbl.State("never-touched")
	assert.False(t, ok)
}
