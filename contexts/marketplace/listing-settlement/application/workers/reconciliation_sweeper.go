package workers

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/gammazero/workerpool"
)

// ReconciliationSweeper recovers events the gateway never delivered. Open
// transactions older than Threshold are polled in parallel and whatever the
// gateway reports goes through the same dedup and apply path as a webhook.
type ReconciliationSweeper struct {
	Transactions ports.TransactionRepository
	Gateway      ports.PaymentGateway
	Processor    WebhookProcessor
	Lock         ports.SweepLock
	Clock        ports.Clock
	Threshold    time.Duration
	BatchSize    int
	Concurrency  int
	Retry        application.RetryPolicy
	LockTTL      time.Duration
	Metrics      *application.SettlementMetrics
	Logger       *slog.Logger
}

func (s ReconciliationSweeper) RunOnce(ctx context.Context) error {
	return runExclusive(ctx, s.Lock, "settlement:reconciliation", s.LockTTL, s.Logger, s.sweep)
}

func (s ReconciliationSweeper) sweep(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = 15 * time.Minute
	}
	now := application.Now(s.Clock)

	stale, err := s.Transactions.ListOpenTransactionsCreatedBefore(ctx, now.Add(-threshold), limit)
	if err != nil {
		logger.Error("reconciliation scan failed",
			"event", "settlement_reconciliation_scan_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		applied  int
		failures int
	)
	pool := workerpool.New(s.concurrency())
	for _, txn := range stale {
		txn := txn
		pool.Submit(func() {
			changed, err := s.reconcile(ctx, txn, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Warn("transaction reconciliation failed",
					"event", "settlement_reconciliation_item_failed",
					"module", "marketplace/listing-settlement",
					"layer", "worker",
					"transaction_id", txn.TransactionID,
					"error", err.Error(),
				)
				return
			}
			if changed {
				applied++
			}
		})
	}
	pool.StopWait()

	s.Metrics.RecordSweep(ctx, "reconciliation", "applied", applied)
	s.Metrics.RecordSweep(ctx, "reconciliation", "failed", failures)
	logger.Info("reconciliation sweep completed",
		"event", "settlement_reconciliation_completed",
		"module", "marketplace/listing-settlement",
		"layer", "worker",
		"scanned_count", len(stale),
		"applied_count", applied,
		"failed_count", failures,
	)
	return nil
}

func (s ReconciliationSweeper) reconcile(ctx context.Context, txn entities.Transaction, now time.Time) (bool, error) {
	if txn.GatewayReference == "" {
		// Initiation never reached the gateway; try again instead of polling.
		_, err := s.Processor.Ledger.InitiatePayment(ctx, txn.TransactionID)
		return false, err
	}

	var status ports.GatewayStatus
	err := s.Retry.Do(ctx, application.IsTransientGatewayError, func(ctx context.Context) error {
		polled, callErr := s.Gateway.Status(ctx, txn.IdempotencyKey)
		s.Metrics.RecordGatewayCall(ctx, "status", callErr)
		if callErr != nil {
			return callErr
		}
		status = polled
		return nil
	})
	if err != nil {
		return false, err
	}

	reported, ok := services.ParseGatewayEventType(strings.ToLower(strings.TrimSpace(status.Status)))
	if !ok {
		return false, nil
	}

	changed := false
	for _, eventType := range catchUpEvents(txn.Status, reported) {
		outcome, err := s.Processor.ApplyTrusted(ctx, GatewayEvent{
			EventType:      string(eventType),
			Reference:      firstNonEmpty(status.Reference, txn.GatewayReference),
			IdempotencyKey: txn.IdempotencyKey,
			Status:         status.Status,
			Amount:         amountOrEmpty(status),
			Currency:       status.Currency,
			Timestamp:      now.Format(time.RFC3339),
		})
		if err != nil {
			return changed, err
		}
		if outcome.Outcome == ports.EventOutcomeApplied {
			changed = true
		}
	}
	return changed, nil
}

// catchUpEvents replays the success path in order, so a two-phase gateway
// that already captured still passes through authorized.
func catchUpEvents(current entities.TransactionStatus, reported services.GatewayEventType) []services.GatewayEventType {
	switch reported {
	case services.GatewayEventCaptured, services.GatewayEventRefunded:
		events := make([]services.GatewayEventType, 0, 3)
		if current == entities.TransactionStatusPending {
			events = append(events, services.GatewayEventAuthorized)
		}
		events = append(events, services.GatewayEventCaptured)
		if reported == services.GatewayEventRefunded {
			events = append(events, services.GatewayEventRefunded)
		}
		return events
	default:
		return []services.GatewayEventType{reported}
	}
}

func amountOrEmpty(status ports.GatewayStatus) string {
	if status.Amount.IsZero() {
		return ""
	}
	return status.Amount.String()
}

func (s ReconciliationSweeper) concurrency() int {
	if s.Concurrency <= 0 {
		return 4
	}
	return s.Concurrency
}
