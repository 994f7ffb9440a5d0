package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("serializes holders of one student", func(t *testing.T) {
		locker := NewMemoryLocker(time.Second)
		studentID := uuid.New()

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Acquire(ctx, studentID)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		assert.Equal(t, 0, locker.held(), "slots are dropped once released")
	})

	t.Run("different students do not block each other", func(t *testing.T) {
		locker := NewMemoryLocker(50 * time.Millisecond)

		release1, err := locker.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		defer release1()

		release2, err := locker.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		release2()
	})

	t.Run("times out with a concurrency conflict", func(t *testing.T) {
		locker := NewMemoryLocker(20 * time.Millisecond)
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)
		defer release()

		_, err = locker.Acquire(ctx, studentID)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.True(t, shared.IsRetryable(err))
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		locker := NewMemoryLocker(time.Minute)
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = locker.Acquire(cctx, studentID)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		locker := NewMemoryLocker(20 * time.Millisecond)
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)
		release()
		release()

		release, err = locker.Acquire(ctx, studentID)
		require.NoError(t, err)
		release()
	})
}

func newRedisLocker(t *testing.T, cfg RedisLockerConfig) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, cfg, nil), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire sets a key with a lease", func(t *testing.T) {
		locker, mr := newRedisLocker(t, RedisLockerConfig{LeaseTTL: 10 * time.Second})
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)

		key := defaultLockPrefix + studentID.String()
		assert.True(t, mr.Exists(key))
		assert.Equal(t, 10*time.Second, mr.TTL(key))

		release()
		assert.False(t, mr.Exists(key))
	})

	t.Run("second acquire times out while held", func(t *testing.T) {
		locker, _ := newRedisLocker(t, RedisLockerConfig{
			AcquireTimeout: 30 * time.Millisecond,
			RetryInterval:  5 * time.Millisecond,
		})
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)
		defer release()

		_, err = locker.Acquire(ctx, studentID)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("waiter gets the lock after release", func(t *testing.T) {
		locker, _ := newRedisLocker(t, RedisLockerConfig{
			AcquireTimeout: time.Second,
			RetryInterval:  5 * time.Millisecond,
		})
		studentID := uuid.New()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			r, err := locker.Acquire(ctx, studentID)
			if err == nil {
				r()
			}
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		release()
		assert.NoError(t, <-done)
	})

	t.Run("release does not delete a lock taken over after expiry", func(t *testing.T) {
		locker, mr := newRedisLocker(t, RedisLockerConfig{LeaseTTL: time.Second})
		studentID := uuid.New()
		key := defaultLockPrefix + studentID.String()

		release, err := locker.Acquire(ctx, studentID)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)
		require.NoError(t, mr.Set(key, "someone-else"))

		release()
		got, err := mr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "someone-else", got)
	})

	t.Run("unreachable redis is a storage error", func(t *testing.T) {
		locker, mr := newRedisLocker(t, RedisLockerConfig{})
		mr.Close()

		_, err := locker.Acquire(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrStorage)
	})
}
