package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "lock:"

// SweepLock elects one worker replica per sweep with a redsync mutex.
type SweepLock struct {
	redsync *redsync.Redsync
	logger  *slog.Logger
}

func NewSweepLock(client redis.UniversalClient, logger *slog.Logger) *SweepLock {
	return &SweepLock{
		redsync: redsync.New(goredis.NewPool(client)),
		logger:  application.ResolveLogger(logger),
	}
}

// TryLock makes a single attempt. Contention is reported as not acquired,
// never as an error.
func (l *SweepLock) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	mutex := l.redsync.NewMutex(lockPrefix+name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire sweep lock %s: %w", name, err)
	}

	release := func() {
		ok, err := mutex.UnlockContext(context.Background())
		if err != nil || !ok {
			attrs := []any{
				"event", "redis_sweep_lock_release_failed",
				"module", "marketplace/listing-settlement",
				"layer", "adapter",
				"lock", name,
			}
			if err != nil {
				attrs = append(attrs, "error", err.Error())
			}
			l.logger.Warn("sweep lock not released, it will expire", attrs...)
		}
	}
	return release, true, nil
}
