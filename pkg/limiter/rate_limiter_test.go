package limiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

func TestSlidingWindowLimiter(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("AllowWithinLimit", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "session", 5, time.Minute)

		for i := 0; i < 5; i++ {
			allowed, err := limiter.Allow(ctx, "10.0.0.1")
			assert.NoError(t, err)
			assert.True(t, allowed, "Request %d should be allowed", i+1)
		}

		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		assert.NoError(t, err)
		assert.False(t, allowed, "6th request should be rejected")
	})

	t.Run("DifferentKeys", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "keys", 1, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, err := limiter.Allow(ctx, fmt.Sprintf("10.0.1.%d", i))
			assert.NoError(t, err)
			assert.True(t, allowed)
		}
	})

	t.Run("KeyExpires", func(t *testing.T) {
		limiter := NewSlidingWindowLimiter(client, "ttl", 1, time.Minute)
		_, err := limiter.Allow(ctx, "10.0.2.1")
		require.NoError(t, err)

		ttl, err := client.PTTL(ctx, "rate_limit:ttl:10.0.2.1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("RedisDown", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		down := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer down.Close()
		mr.Close()

		limiter := NewSlidingWindowLimiter(down, "down", 1, time.Minute)
		allowed, err := limiter.Allow(ctx, "10.0.3.1")
		assert.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestKeyedTokenBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("BurstPerKey", func(t *testing.T) {
		limiter := NewKeyedTokenBucket(rate.Limit(1), 2, time.Minute)

		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Allow(ctx, "a")
			assert.True(t, allowed)
		}
		allowed, _ := limiter.Allow(ctx, "a")
		assert.False(t, allowed)

		allowed, _ = limiter.Allow(ctx, "b")
		assert.True(t, allowed)
		assert.Equal(t, 2, limiter.Size())
	})

	t.Run("IdleKeysDropped", func(t *testing.T) {
		limiter := NewKeyedTokenBucket(rate.Limit(10), 10, 10*time.Millisecond)
		_, _ = limiter.Allow(ctx, "old")
		time.Sleep(25 * time.Millisecond)
		_, _ = limiter.Allow(ctx, "new")

		assert.Equal(t, 1, limiter.Size())
	})
}

type stubLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	first := &stubLimiter{allowed: false}
	second := &stubLimiter{allowed: true}
	allowed, err := Chain{first, second}.Allow(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, second.calls, "later limiters are not consulted after a rejection")

	failing := &stubLimiter{err: errors.New("redis down")}
	_, err = Chain{&stubLimiter{allowed: true}, failing}.Allow(ctx, "k")
	assert.Error(t, err)

	allowed, err = Chain{&stubLimiter{allowed: true}, &stubLimiter{allowed: true}}.Allow(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, allowed)
}
