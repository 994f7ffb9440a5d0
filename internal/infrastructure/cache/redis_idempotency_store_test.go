package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve is exclusive", func(t *testing.T) {
		_, client := newTestRedis(t)
		store := NewRedisIdempotencyStore(client, "")

		ok, err := store.Reserve(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Reserve(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		resp, found, err := store.Lookup(ctx, "k1")
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, resp.Pending)
	})

	t.Run("complete replaces the reservation", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisIdempotencyStore(client, "test:")

		_, err := store.Reserve(ctx, "k2", time.Hour)
		require.NoError(t, err)
		err = store.Complete(ctx, "k2", shared.StoredResponse{Status: 200, Body: []byte(`{"ok":1}`)}, time.Hour)
		require.NoError(t, err)

		assert.True(t, mr.Exists("test:k2"))

		resp, found, err := store.Lookup(ctx, "k2")
		require.NoError(t, err)
		require.True(t, found)
		assert.False(t, resp.Pending)
		assert.Equal(t, 200, resp.Status)
		assert.JSONEq(t, `{"ok":1}`, string(resp.Body))
	})

	t.Run("keys expire with their ttl", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisIdempotencyStore(client, "")

		_, err := store.Reserve(ctx, "k3", time.Minute)
		require.NoError(t, err)
		mr.FastForward(2 * time.Minute)

		_, found, err := store.Lookup(ctx, "k3")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("forget deletes the key", func(t *testing.T) {
		_, client := newTestRedis(t)
		store := NewRedisIdempotencyStore(client, "")

		_, err := store.Reserve(ctx, "k4", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, "k4"))

		ok, err := store.Reserve(ctx, "k4", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("redis errors are returned", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisIdempotencyStore(client, "")
		mr.Close()

		_, err := store.Reserve(ctx, "k5", time.Hour)
		assert.Error(t, err)
	})
}

func TestIdempotencyStoreFactory(t *testing.T) {
	t.Run("falls back to memory without a client", func(t *testing.T) {
		store, err := NewIdempotencyStoreFactory(nil).CreateStore()
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("refuses to fall back when disabled", func(t *testing.T) {
		_, err := NewIdempotencyStoreFactory(nil, WithInMemoryFallback(false)).CreateStore()
		assert.Error(t, err)
	})

	t.Run("uses redis when a client is given", func(t *testing.T) {
		_, client := newTestRedis(t)
		store, err := NewIdempotencyStoreFactory(client).CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &RedisIdempotencyStore{}, store)
	})
}
