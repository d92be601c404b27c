package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, attempts int) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocker(rdb, LockConfig{TTL: time.Second, RetryInterval: 5 * time.Millisecond, RetryAttempts: attempts}, nil)
}

func TestLockerSerialisesHolders(t *testing.T) {
	locker := newTestLocker(t, 2)
	ctx := context.Background()
	key := DocumentLockKey("invoice", 42)
	require.Equal(t, "billing:invoice:42:lock", key)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockNotObtained)
	require.True(t, Retryable(err))

	release()
	again, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}

func TestLockerWaiterObtainsAfterRelease(t *testing.T) {
	locker := newTestLocker(t, 200)
	ctx := context.Background()
	key := DocumentLockKey("quote", 7)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		rel, err := locker.Acquire(ctx, key)
		if err == nil {
			rel()
		}
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	release()
	require.NoError(t, <-done)
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "any")
	require.NoError(t, err)
	release()
}
