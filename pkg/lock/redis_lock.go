package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockFailed lock acquisition failed
	ErrLockFailed = errors.New("failed to acquire lock")
	// ErrLockNotHeld lock is not held
	ErrLockNotHeld = errors.New("lock not held")
)

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock a single distributed lock. The value is a random owner token so
// only the holder can release it.
type RedisLock struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Lock acquires the lock once
func (l *RedisLock) Lock(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockFailed
	}
	return nil
}

// TryLock retries Lock until it succeeds, attempts run out or ctx ends
func (l *RedisLock) TryLock(ctx context.Context, attempts int, retryDelay time.Duration) error {
	for i := 0; i < attempts; i++ {
		err := l.Lock(ctx)
		if !errors.Is(err, ErrLockFailed) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if still held
func (l *RedisLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Locker hands out named locks under a common prefix
type Locker struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	attempts   int
	retryDelay time.Duration
}

// NewLocker creates a locker; each Acquire waits at most attempts x retryDelay
func NewLocker(client redis.Cmdable, prefix string, ttl time.Duration, attempts int, retryDelay time.Duration) *Locker {
	if attempts < 1 {
		attempts = 1
	}
	return &Locker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

// Acquire locks name and returns its release function
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	lk := NewRedisLock(l.client, fmt.Sprintf("lock:%s:%s", l.prefix, name), l.ttl)
	if err := lk.TryLock(ctx, l.attempts, l.retryDelay); err != nil {
		return nil, err
	}

	return func() {
		// release on a fresh context so a cancelled request still unlocks
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lk.Unlock(ctx)
	}, nil
}
