package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_Reserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("reserves a new key", func(t *testing.T) {
		ok, err := store.Reserve(ctx, "key-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		resp, found, err := store.Lookup(ctx, "key-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, resp.Pending)
	})

	t.Run("rejects a key already reserved", func(t *testing.T) {
		ok, err := store.Reserve(ctx, "key-2", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.Reserve(ctx, "key-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("allows a key again after expiration", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }
		defer func() { store.now = time.Now }()

		ok, err := store.Reserve(ctx, "key-3", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		now = now.Add(2 * time.Minute)
		ok, err = store.Reserve(ctx, "key-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired key should be reservable")
	})
}

func TestInMemoryIdempotencyStore_CompleteAndLookup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("unknown key is not found", func(t *testing.T) {
		_, found, err := store.Lookup(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("completed key returns the stored response", func(t *testing.T) {
		_, err := store.Reserve(ctx, "pay-1", time.Hour)
		require.NoError(t, err)

		err = store.Complete(ctx, "pay-1", shared.StoredResponse{Pending: true, Status: 201, Body: []byte(`{"success":true}`)}, time.Hour)
		require.NoError(t, err)

		resp, found, err := store.Lookup(ctx, "pay-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.False(t, resp.Pending)
		assert.Equal(t, 201, resp.Status)
		assert.JSONEq(t, `{"success":true}`, string(resp.Body))
	})

	t.Run("forget releases the key", func(t *testing.T) {
		_, err := store.Reserve(ctx, "pay-2", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, "pay-2"))

		_, found, err := store.Lookup(ctx, "pay-2")
		require.NoError(t, err)
		assert.False(t, found)

		ok, err := store.Reserve(ctx, "pay-2", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, _ = store.Reserve(ctx, "short-lived-1", time.Second)
	_, _ = store.Reserve(ctx, "short-lived-2", time.Second)
	_, _ = store.Reserve(ctx, "long-lived", time.Hour)
	assert.Equal(t, 3, store.Size())

	now = now.Add(time.Minute)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
	_, found, err := store.Lookup(ctx, "long-lived")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInMemoryIdempotencyStore_ConcurrentReserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 100

	var wg sync.WaitGroup
	results := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Reserve(ctx, "concurrent", time.Hour)
			results <- err == nil && ok
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one caller should win the key")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
