package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryContext_ZeroUsesDefaultQueryTimeout(t *testing.T) {
	newCtx, cancel := QueryContext(context.Background(), 0)
	defer cancel()

	deadline, ok := newCtx.Deadline()
	require.True(t, ok, "QueryContext must always attach a deadline")
	assert.InDelta(t, DefaultQueryTimeout, time.Until(deadline), float64(time.Second))
}

func TestQueryContext_CustomTimeoutOverridesDefault(t *testing.T) {
	const want = 5 * time.Second

	newCtx, cancel := QueryContext(context.Background(), want)
	defer cancel()

	deadline, ok := newCtx.Deadline()
	require.True(t, ok)
	assert.InDelta(t, want, time.Until(deadline), float64(time.Second))
}

// TestQueryContext_TighterParentDeadlineWins exercises the case Provider's
// callers actually hit: DataIO's primary timeout wraps the provider call in
// its own deadline before Provider.Read/Write ever calls QueryContext, so the
// shorter of the two must win rather than QueryContext silently extending it.
func TestQueryContext_TighterParentDeadlineWins(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer parentCancel()

	newCtx, cancel := QueryContext(parent, DefaultQueryTimeout)
	defer cancel()

	deadline, ok := newCtx.Deadline()
	require.True(t, ok)
	assert.Less(t, time.Until(deadline), DefaultQueryTimeout)
}

func TestQueryContext_CancelPropagates(t *testing.T) {
	newCtx, cancel := QueryContext(context.Background(), 10*time.Second)
	cancel()

	select {
	case <-newCtx.Done():
		assert.ErrorIs(t, newCtx.Err(), context.Canceled)
	default:
		t.Fatal("expected context to be done after cancel")
	}
}

func TestDefaultTimeoutValues(t *testing.T) {
	assert.Equal(t, 10*time.Second, DefaultConnTimeout)
	assert.Equal(t, 30*time.Second, DefaultQueryTimeout)
}
