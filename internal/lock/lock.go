// Package lock provides a lease-based mutex: distributed on Redis, or
// process-local for single-instance runs.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// releaseTimeout bounds the release call made on a detached context.
const releaseTimeout = 5 * time.Second

type Locker interface {
	// Acquire reports whether this holder won the lease on name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// Release drops the lease only if this holder still owns it.
	Release(ctx context.Context, name string) error
}

// Compare-and-delete so an expired lease that someone else re-acquired is
// left untouched.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb   redis.UniversalClient
	token string
}

// NewRedisLocker returns a locker with a fresh holder token.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb, token: uuid.NewString()}
}

func (l *RedisLocker) Token() string {
	return l.token
}

// Ping checks the backing Redis connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+name, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock.RedisLocker.Acquire %s: %w", name, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + name}, l.token).Err(); err != nil {
		return fmt.Errorf("lock.RedisLocker.Release %s: %w", name, err)
	}
	return nil
}

// WithLock runs fn while holding the lease on name. ran is false when the
// lease was held by someone else. The lease is released on every exit path,
// including a panic in fn, which is re-raised after release.
func WithLock(ctx context.Context, l Locker, name string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.Acquire(ctx, name, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := l.Release(rctx, name); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return true, fn(ctx)
}
