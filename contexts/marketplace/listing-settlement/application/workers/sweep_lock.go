package workers

import (
	"context"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// runExclusive runs fn only when this replica holds the named sweep lock.
// A nil lock runs fn directly.
func runExclusive(
	ctx context.Context,
	lock ports.SweepLock,
	name string,
	ttl time.Duration,
	logger *slog.Logger,
	fn func(ctx context.Context) error,
) error {
	if lock == nil {
		return fn(ctx)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	release, acquired, err := lock.TryLock(ctx, name, ttl)
	if err != nil {
		application.ResolveLogger(logger).Error("sweep lock failed",
			"event", "settlement_sweep_lock_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"sweep", name,
			"error", err.Error(),
		)
		return err
	}
	if !acquired {
		application.ResolveLogger(logger).Debug("sweep lock held elsewhere",
			"event", "settlement_sweep_lock_skipped",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"sweep", name,
		)
		return nil
	}
	defer release()
	return fn(ctx)
}
