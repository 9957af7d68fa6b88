package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// SettlementCompleter finishes the saga for captured transactions whose
// listing never reached sold or leased. It only ever moves forward from the
// ledger's committed state.
type SettlementCompleter struct {
	Transactions ports.TransactionRepository
	Machine      commands.ListingStateMachine
	Alerter      ports.OperatorAlerter
	Lock         ports.SweepLock
	BatchSize    int
	LockTTL      time.Duration
	Metrics      *application.SettlementMetrics
	Logger       *slog.Logger
}

func (c SettlementCompleter) RunOnce(ctx context.Context) error {
	return runExclusive(ctx, c.Lock, "settlement:completer", c.LockTTL, c.Logger, c.sweep)
}

func (c SettlementCompleter) sweep(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	limit := c.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := c.Transactions.ListCapturedAwaitingSettlement(ctx, limit)
	if err != nil {
		logger.Error("settlement completion scan failed",
			"event", "settlement_completer_scan_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	settled, stuck := 0, 0
	for _, txn := range pending {
		_, err := c.Machine.CompleteTransaction(ctx, commands.CompleteTransactionCommand{
			ListingID:     txn.ListingID,
			TransactionID: txn.TransactionID,
		})
		if err == nil {
			settled++
			continue
		}
		stuck++
		if errors.Is(err, domainerrors.ErrInvalidTransition) || errors.Is(err, domainerrors.ErrFatalConsistency) {
			if c.Alerter != nil {
				c.Alerter.Alert(ctx, "high", "captured transaction cannot settle its listing", map[string]string{
					"transaction_id": txn.TransactionID,
					"listing_id":     txn.ListingID,
					"error":          err.Error(),
				})
			}
		}
		logger.Warn("settlement completion pending",
			"event", "settlement_completer_item_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"transaction_id", txn.TransactionID,
			"listing_id", txn.ListingID,
			"error", err.Error(),
		)
	}
	c.Metrics.RecordSweep(ctx, "settlement_completer", "settled", settled)
	c.Metrics.RecordSweep(ctx, "settlement_completer", "pending", stuck)
	if settled > 0 || stuck > 0 {
		logger.Info("settlement completion sweep completed",
			"event", "settlement_completer_completed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"settled_count", settled,
			"pending_count", stuck,
		)
	}
	return nil
}
