package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})
	return client, s
}

func TestRedisLock(t *testing.T) {
	client, s := setupRedis(t)
	ctx := context.Background()

	t.Run("lock and unlock", func(t *testing.T) {
		lk := NewRedisLock(client, "basic", time.Minute)
		require.NoError(t, lk.Lock(ctx))
		assert.True(t, s.Exists("basic"))

		require.NoError(t, lk.Unlock(ctx))
		assert.False(t, s.Exists("basic"))
	})

	t.Run("conflict", func(t *testing.T) {
		first := NewRedisLock(client, "conflict", time.Minute)
		second := NewRedisLock(client, "conflict", time.Minute)

		require.NoError(t, first.Lock(ctx))
		assert.ErrorIs(t, second.Lock(ctx), ErrLockFailed)
		assert.ErrorIs(t, second.Unlock(ctx), ErrLockNotHeld)

		assert.True(t, s.Exists("conflict"))
		require.NoError(t, first.Unlock(ctx))
	})

	t.Run("expiry frees the key", func(t *testing.T) {
		first := NewRedisLock(client, "expiry", time.Second)
		require.NoError(t, first.Lock(ctx))

		s.FastForward(2 * time.Second)

		second := NewRedisLock(client, "expiry", time.Second)
		assert.NoError(t, second.Lock(ctx))
		assert.ErrorIs(t, first.Unlock(ctx), ErrLockNotHeld)
	})

	t.Run("try lock gives up", func(t *testing.T) {
		holder := NewRedisLock(client, "busy", time.Minute)
		require.NoError(t, holder.Lock(ctx))

		waiter := NewRedisLock(client, "busy", time.Minute)
		start := time.Now()
		err := waiter.TryLock(ctx, 3, 10*time.Millisecond)
		assert.ErrorIs(t, err, ErrLockFailed)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("try lock honours context", func(t *testing.T) {
		holder := NewRedisLock(client, "ctx", time.Minute)
		require.NoError(t, holder.Lock(ctx))

		cctx, cancel := context.WithTimeout(ctx, 15*time.Millisecond)
		defer cancel()
		err := NewRedisLock(client, "ctx", time.Minute).TryLock(cctx, 100, 10*time.Millisecond)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestLocker(t *testing.T) {
	client, s := setupRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, "merge", time.Minute, 2, 5*time.Millisecond)

	release, err := locker.Acquire(ctx, "a-1")
	require.NoError(t, err)
	assert.True(t, s.Exists("lock:merge:a-1"))

	_, err = locker.Acquire(ctx, "a-1")
	assert.ErrorIs(t, err, ErrLockFailed)

	other, err := locker.Acquire(ctx, "a-2")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, s.Exists("lock:merge:a-1"))

	release, err = locker.Acquire(ctx, "a-1")
	require.NoError(t, err)
	release()
}
