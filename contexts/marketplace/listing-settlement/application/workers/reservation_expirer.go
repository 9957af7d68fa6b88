package workers

import (
	"context"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// ReservationExpirer reverts lapsed reservations through the same audited,
// version-checked transition a client request would use.
type ReservationExpirer struct {
	Listings  ports.ListingRepository
	Machine   commands.ListingStateMachine
	Lock      ports.SweepLock
	Clock     ports.Clock
	BatchSize int
	LockTTL   time.Duration
	Metrics   *application.SettlementMetrics
	Logger    *slog.Logger
}

func (e ReservationExpirer) RunOnce(ctx context.Context) error {
	return runExclusive(ctx, e.Lock, "settlement:reservation-expiry", e.LockTTL, e.Logger, e.sweep)
}

func (e ReservationExpirer) sweep(ctx context.Context) error {
	logger := application.ResolveLogger(e.Logger)
	limit := e.BatchSize
	if limit <= 0 {
		limit = 100
	}

	candidates, err := e.Listings.ListExpiredReservations(ctx, application.Now(e.Clock), limit)
	if err != nil {
		logger.Error("reservation expiry scan failed",
			"event", "settlement_reservation_expiry_scan_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	expired, skipped := 0, 0
	for _, listing := range candidates {
		_, applied, err := e.Machine.ExpireReservation(ctx, listing.ListingID)
		if err != nil {
			// A concurrent transition won the race; the next sweep re-reads.
			skipped++
			continue
		}
		if applied {
			expired++
		}
	}
	e.Metrics.RecordSweep(ctx, "reservation_expiry", "expired", expired)
	e.Metrics.RecordSweep(ctx, "reservation_expiry", "skipped", skipped)
	if expired > 0 || skipped > 0 {
		logger.Info("reservation expiry sweep completed",
			"event", "settlement_reservation_expiry_completed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"expired_count", expired,
			"skipped_count", skipped,
		)
	}
	return nil
}
