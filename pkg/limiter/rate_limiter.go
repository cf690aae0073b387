package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter rate limiter interface
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// slidingWindowScript trims the window, then admits the request if there is room
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return 1
	end
	return 0
`)

// SlidingWindowLimiter sliding window limiter shared by every instance through Redis
type SlidingWindowLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow checks if the request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("rate_limit:%s:%s", l.prefix, key)},
		now,
		windowStart,
		l.limit,
		l.window.Milliseconds(),
		// unique member so two requests in the same millisecond both count
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

// KeyedTokenBucket in-process token bucket per key
type KeyedTokenBucket struct {
	rate  rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[string]*bucketEntry
	lastGC   time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedTokenBucket creates a per-key token bucket. Buckets idle for longer
// than ttl are dropped.
func NewKeyedTokenBucket(r rate.Limit, burst int, ttl time.Duration) *KeyedTokenBucket {
	return &KeyedTokenBucket{
		rate:     r,
		burst:    burst,
		ttl:      ttl,
		limiters: make(map[string]*bucketEntry),
		lastGC:   time.Now(),
	}
}

// Allow checks if the request is allowed
func (l *KeyedTokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	if l.ttl > 0 && now.Sub(l.lastGC) > l.ttl {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	return entry.limiter.AllowN(now, 1), nil
}

// Size returns the number of tracked keys
func (l *KeyedTokenBucket) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Chain admits a request only if every limiter does, checking in order
type Chain []RateLimiter

// Allow checks if the request is allowed
func (c Chain) Allow(ctx context.Context, key string) (bool, error) {
	for _, l := range c {
		allowed, err := l.Allow(ctx, key)
		if err != nil || !allowed {
			return false, err
		}
	}
	return true, nil
}
