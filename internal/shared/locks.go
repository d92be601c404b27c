package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DocumentLockKey builds redis keys for billing document critical sections.
func DocumentLockKey(kind string, id int64) string {
	return fmt.Sprintf("billing:%s:%d:lock", kind, id)
}

// ErrLockNotObtained is returned when the lock stays busy past all retries.
var ErrLockNotObtained = fmt.Errorf("%w: document is busy", ErrTransient)

// LockConfig tunes Locker.
type LockConfig struct {
	TTL           time.Duration
	RetryInterval time.Duration
	RetryAttempts int
}

// Locker obtains short-lived redis locks. Losers wait with linear backoff
// and then see the winner's result. A nil *Locker never blocks.
type Locker struct {
	client *redislock.Client
	cfg    LockConfig
	logger *slog.Logger
}

// NewLocker wraps a redis client.
func NewLocker(rdb redis.UniversalClient, cfg LockConfig, logger *slog.Logger) *Locker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), cfg: cfg, logger: logger}
}

// Acquire blocks until key is held or retries run out.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.RetryInterval), l.cfg.RetryAttempts),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
		}
		return nil, fmt.Errorf("%w: obtain %s: %v", ErrTransient, key, err)
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("release document lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
