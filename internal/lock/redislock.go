package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by TryLock when another holder owns the key.
var ErrNotAcquired = errors.New("lock: already held")

// Locker provides a Redis-backed lock with fail-fast acquisition. It guards
// the one-active-payment-per-order invariant, so contention is an error the
// caller reports rather than something to wait out.
type Locker struct {
	R *redis.Client
}

// TryLock acquires key for the given owner token or fails immediately with
// ErrNotAcquired. The TTL bounds how long a crashed holder can block others.
func (l Locker) TryLock(ctx context.Context, key, token string, ttl time.Duration) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(token) == "" {
		return errors.New("lock: key and token are required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Unlock releases the key if it is still owned by token. Releasing a lock
// that expired or changed hands is a no-op.
func (l Locker) Unlock(ctx context.Context, key, token string) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			return l.R.Del(ctx, key).Err()
		}
		return err
	}
	return nil
}
