package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Locker{R: rdb}, mr
}

func TestTryLockFailsFastWhenHeld(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	require.NoError(t, l.TryLock(ctx, "paylock:ord-1", "ref-a", time.Minute))

	start := time.Now()
	err := l.TryLock(ctx, "paylock:ord-1", "ref-b", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
	require.Less(t, time.Since(start), 100*time.Millisecond, "contended acquisition must not block")
}

func TestUnlockOnlyReleasesOwnToken(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	require.NoError(t, l.TryLock(ctx, "paylock:ord-1", "ref-a", time.Minute))

	// A non-owner release is a no-op.
	require.NoError(t, l.Unlock(ctx, "paylock:ord-1", "ref-b"))
	require.ErrorIs(t, l.TryLock(ctx, "paylock:ord-1", "ref-c", time.Minute), ErrNotAcquired)

	// The owner releases and the lock becomes free.
	require.NoError(t, l.Unlock(ctx, "paylock:ord-1", "ref-a"))
	require.NoError(t, l.TryLock(ctx, "paylock:ord-1", "ref-c", time.Minute))
}

func TestLockExpiresByTTL(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	require.NoError(t, l.TryLock(ctx, "paylock:ord-1", "ref-a", time.Second))
	mr.FastForward(2 * time.Second)
	require.NoError(t, l.TryLock(ctx, "paylock:ord-1", "ref-b", time.Second))
}

func TestTryLockRequiresKeyAndToken(t *testing.T) {
	l, _ := newLocker(t)
	require.Error(t, l.TryLock(context.Background(), "", "ref", time.Minute))
	require.Error(t, l.TryLock(context.Background(), "key", "", time.Minute))
}
