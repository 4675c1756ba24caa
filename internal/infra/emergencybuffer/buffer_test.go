package emergencybuffer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	b, err := Open(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBuffer_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	_, err := b.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Write(ctx, "order:1", []byte(`{"status":"pending"}`), "critical"))
	entry, err := b.Read(ctx, "order:1")
	require.NoError(t, err)
	assert.Equal(t, "order:1", entry.Key)
	assert.Equal(t, []byte(`{"status":"pending"}`), entry.Data)
	assert.Equal(t, "critical", entry.Intent)
	assert.True(t, entry.PendingSync)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, b.Delete(ctx, "order:1"))
	_, err = b.Read(ctx, "order:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuffer_WriteUpsertsExistingKey(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	require.NoError(t, b.Write(ctx, "k", []byte("v1"), "critical"))
	require.NoError(t, b.Write(ctx, "k", []byte("v2"), "critical"))

	entry, err := b.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), entry.Data)

	count, err := b.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuffer_ListPendingOrderedOldestFirst(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	require.NoError(t, b.Write(ctx, "a", []byte("1"), "critical"))
	require.NoError(t, b.Write(ctx, "b", []byte("2"), "critical"))
	require.NoError(t, b.Write(ctx, "c", []byte("3"), "critical"))

	entries, err := b.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, "c", entries[2].Key)
}

func TestBuffer_MarkSyncedRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	require.NoError(t, b.Write(ctx, "a", []byte("1"), "critical"))
	entry, err := b.Read(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, b.MarkSynced(ctx, entry.ID))

	pending, err := b.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stillThere, err := b.Read(ctx, "a")
	require.NoError(t, err)
	assert.False(t, stillThere.PendingSync)
}

func TestBuffer_PurgeSynced(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	require.NoError(t, b.Write(ctx, "a", []byte("1"), "critical"))
	require.NoError(t, b.Write(ctx, "b", []byte("2"), "critical"))

	entryA, err := b.Read(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, b.MarkSynced(ctx, entryA.ID))

	purged, err := b.PurgeSynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = b.Read(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.Read(ctx, "b")
	assert.NoError(t, err)
}

func TestBuffer_ListPendingRespectsLimit(t *testing.T) {
	ctx := context.Background()
	b := openTestBuffer(t)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, b.Write(ctx, k, []byte("v"), "critical"))
	}

	entries, err := b.ListPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
