package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CheckAndMark(t *testing.T) {
	store, err := New(16)
	require.NoError(t, err)

	ctx := context.Background()

	isNew, err := store.CheckAndMark(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.CheckAndMark(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestStore_CheckAndMarkExpires(t *testing.T) {
	store, err := New(16)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.CheckAndMark(ctx, "op-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	isNew, err := store.CheckAndMark(ctx, "op-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestStore_MarkProcessedAndGetMetadata(t *testing.T) {
	store, err := New(16)
	require.NoError(t, err)

	ctx := context.Background()

	_, ok, err := store.GetMetadata(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.MarkProcessed(ctx, "op-1", map[string]any{"rows_affected": 5})
	require.NoError(t, err)

	meta, ok, err := store.GetMetadata(ctx, "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, meta["rows_affected"])
}

func TestStore_CapacityEvictsOldest(t *testing.T) {
	store, err := New(2)
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = store.CheckAndMark(ctx, "op-1", time.Hour)
	_, _ = store.CheckAndMark(ctx, "op-2", time.Hour)
	_, _ = store.CheckAndMark(ctx, "op-3", time.Hour) // evicts op-1

	processed, err := store.IsProcessed(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, processed, "op-1 should have been evicted")

	processed, err = store.IsProcessed(ctx, "op-3")
	require.NoError(t, err)
	assert.True(t, processed)
}
