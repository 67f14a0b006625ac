package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	config := DefaultConfig()
	config.Addr = mr.Addr()

	return NewFromClient(client, config, nil), mr
}

func TestStore_CheckAndMark(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	t.Run("first occurrence returns true", func(t *testing.T) {
		isNew, err := store.CheckAndMark(ctx, "op-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("repeat occurrence returns false", func(t *testing.T) {
		_, err := store.CheckAndMark(ctx, "op-2", time.Minute)
		require.NoError(t, err)

		isNew, err := store.CheckAndMark(ctx, "op-2", time.Minute)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		_, err := store.CheckAndMark(ctx, "op-3", time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		isNew, err := store.CheckAndMark(ctx, "op-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew, "key should have expired and be treated as new")
	})
}

func TestStore_IsProcessed(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.CheckAndMark(ctx, "known", time.Minute)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "known")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestStore_MarkProcessedAndGetMetadata(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	meta, ok, err := store.GetMetadata(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, meta)

	err = store.MarkProcessed(ctx, "op-1", map[string]any{"rows_affected": float64(3)})
	require.NoError(t, err)

	meta, ok, err = store.GetMetadata(ctx, "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(3), meta["rows_affected"])
}

func TestStore_MarkProcessedPreservesExistingTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	_, err := store.CheckAndMark(ctx, "op-1", 30*time.Second)
	require.NoError(t, err)

	err = store.MarkProcessed(ctx, "op-1", map[string]any{"done": true})
	require.NoError(t, err)

	ttl := mr.TTL(store.key("op-1"))
	assert.True(t, ttl > 0 && ttl <= 30*time.Second)
}

func TestStore_KeyPrefixNamespacesKeys(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	_, err := store.CheckAndMark(ctx, "op-1", time.Minute)
	require.NoError(t, err)

	assert.True(t, mr.Exists(store.config.KeyPrefix+"op-1"))
}
