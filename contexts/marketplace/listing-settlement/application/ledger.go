package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/shopspring/decimal"
)

const (
	transactionEventOpened   = "settlement.transaction.opened"
	transactionEventUpdated  = "settlement.transaction.status_changed"
	transactionEventRefunded = "settlement.transaction.refunded"
)

// Ledger is the only writer of Transaction.status.
type Ledger struct {
	Tx           ports.TxRunner
	Transactions ports.TransactionRepository
	Audit        AuditWriter
	Outbox       ports.OutboxWriter
	Gateway      ports.PaymentGateway
	IDGenerator  ports.IDGenerator
	Clock        ports.Clock
	Retry        RetryPolicy
	// SinglePhaseGateways may capture straight from pending.
	SinglePhaseGateways map[entities.PaymentGateway]bool
	// RefundWindow bounds client refunds after capture; zero means unlimited.
	RefundWindow time.Duration
	Metrics      *SettlementMetrics
	Logger       *slog.Logger
}

type OpenTransactionInput struct {
	Listing        entities.Listing
	BuyerID        string
	Amount         decimal.Decimal
	Currency       string
	Gateway        entities.PaymentGateway
	IdempotencyKey string
	ActorID        string
}

// FindReplay returns the transaction already opened under the input's key.
// A key reused for a different request is ErrIdempotencyKeyConflict.
func (l Ledger) FindReplay(ctx context.Context, input OpenTransactionInput) (entities.Transaction, bool, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	existing, found, err := l.Transactions.GetTransactionByIdempotencyKey(ctx, key)
	if err != nil || !found {
		return entities.Transaction{}, false, err
	}
	if existing.ListingID != input.Listing.ListingID ||
		existing.BuyerID != input.BuyerID ||
		!existing.Amount.Equal(input.Amount) ||
		(input.Currency != "" && !strings.EqualFold(existing.Currency, input.Currency)) {
		ResolveLogger(l.Logger).Warn("idempotency key reused with different request",
			"event", "settlement_transaction_idempotency_conflict",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"idempotency_key", key,
			"transaction_id", existing.TransactionID,
		)
		return entities.Transaction{}, false, domainerrors.ErrIdempotencyKeyConflict
	}
	return existing, true, nil
}

// OpenTransaction creates a pending transaction. It must run inside the
// caller's transaction. A reused key returns the original transaction when
// the request matches it and a conflict otherwise.
func (l Ledger) OpenTransaction(ctx context.Context, input OpenTransactionInput) (entities.Transaction, bool, error) {
	logger := ResolveLogger(l.Logger)
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return entities.Transaction{}, false, domainerrors.ErrIdempotencyKeyRequired
	}

	existing, found, err := l.FindReplay(ctx, input)
	if err != nil || found {
		return existing, found, err
	}

	open, found, err := l.Transactions.GetOpenTransactionForListing(ctx, input.Listing.ListingID)
	if err != nil {
		return entities.Transaction{}, false, err
	}
	if found {
		logger.Warn("open transaction already exists for listing",
			"event", "settlement_transaction_open_conflict",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"listing_id", input.Listing.ListingID,
			"transaction_id", open.TransactionID,
		)
		return entities.Transaction{}, false, domainerrors.ErrOpenTransactionExists
	}

	transactionID, err := l.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Transaction{}, false, err
	}
	txn, err := entities.NewTransaction(
		transactionID,
		input.Listing.ListingID,
		input.BuyerID,
		input.Amount,
		input.Currency,
		input.Gateway,
		key,
		Now(l.Clock),
	)
	if err != nil {
		return entities.Transaction{}, false, err
	}
	if err := l.Transactions.CreateTransaction(ctx, txn); err != nil {
		return entities.Transaction{}, false, err
	}
	if _, err := l.Audit.Append(ctx, AuditRecord{
		EntityType: entities.AuditEntityTransaction,
		EntityID:   txn.TransactionID,
		Action:     entities.ActionTransactionOpened,
		ActorID:    input.ActorID,
		After:      SnapshotTransaction(txn),
	}); err != nil {
		return entities.Transaction{}, false, err
	}
	if err := l.emit(ctx, transactionEventOpened, txn, input.ActorID, ""); err != nil {
		return entities.Transaction{}, false, err
	}
	return txn, false, nil
}

// InitiatePayment asks the gateway for a payment intent and records the
// reference. The gateway call happens outside any storage transaction.
func (l Ledger) InitiatePayment(ctx context.Context, transactionID string) (entities.Transaction, error) {
	logger := ResolveLogger(l.Logger)
	txn, err := l.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return entities.Transaction{}, err
	}
	if txn.GatewayReference != "" || !txn.Status.IsOpen() {
		return txn, nil
	}
	if l.Gateway == nil {
		return txn, fmt.Errorf("%w: no gateway configured", domainerrors.ErrGatewayUnavailable)
	}

	var reference string
	err = l.Retry.Do(ctx, IsTransientGatewayError, func(ctx context.Context) error {
		ref, callErr := l.Gateway.Initiate(ctx, txn.Amount, txn.Currency, txn.IdempotencyKey)
		l.Metrics.RecordGatewayCall(ctx, "initiate", callErr)
		if callErr != nil {
			return callErr
		}
		reference = ref
		return nil
	})
	if err != nil {
		logger.Error("gateway initiate failed",
			"event", "settlement_gateway_initiate_failed",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"transaction_id", txn.TransactionID,
			"error", err.Error(),
		)
		if errors.Is(err, domainerrors.ErrGateway) {
			return txn, err
		}
		return txn, fmt.Errorf("%w: %v", domainerrors.ErrGatewayUnavailable, err)
	}

	var updated entities.Transaction
	err = l.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := l.Transactions.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if current.GatewayReference != "" {
			updated = current
			return nil
		}
		next := current
		next.GatewayReference = reference
		next.UpdatedAt = Now(l.Clock)
		if err := l.Transactions.UpdateTransaction(ctx, next, current.Status); err != nil {
			return err
		}
		if _, err := l.Audit.Append(ctx, AuditRecord{
			EntityType: entities.AuditEntityTransaction,
			EntityID:   next.TransactionID,
			Action:     entities.ActionGatewayInitiated,
			Before:     SnapshotTransaction(current),
			After:      SnapshotTransaction(next),
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return txn, err
	}

	logger.Info("gateway payment initiated",
		"event", "settlement_gateway_initiated",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"transaction_id", updated.TransactionID,
		"gateway", updated.Gateway,
		"gateway_reference", updated.GatewayReference,
	)
	return updated, nil
}

// GatewayEventInput is an already-authenticated gateway event. Amount is
// optional; when set it must match the transaction.
type GatewayEventInput struct {
	IdempotencyKey string
	EventType      services.GatewayEventType
	Reference      string
	Amount         *decimal.Decimal
	Currency       string
	Reason         string
}

type ApplyResult struct {
	Transaction    entities.Transaction
	PreviousStatus entities.TransactionStatus
	Applied        bool
}

// ApplyGatewayEvent moves the transaction along the settlement table. A
// transaction already at or past the target is reported as not applied with
// no error; illegal moves fail with ErrTransactionTransition.
func (l Ledger) ApplyGatewayEvent(ctx context.Context, input GatewayEventInput) (ApplyResult, error) {
	logger := ResolveLogger(l.Logger)
	target := input.EventType.Target()
	if target == "" {
		return ApplyResult{}, domainerrors.ErrMalformedEvent
	}

	var result ApplyResult
	err := l.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, found, err := l.Transactions.GetTransactionByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrTransactionNotFound
		}
		result = ApplyResult{Transaction: current, PreviousStatus: current.Status}

		if input.Amount != nil && !input.Amount.Equal(current.Amount) {
			return domainerrors.ErrEventAmountMismatch
		}
		if input.Currency != "" && !strings.EqualFold(input.Currency, current.Currency) {
			return domainerrors.ErrEventAmountMismatch
		}

		decision, err := services.DecideSettlement(current.Status, target, l.SinglePhaseGateways[current.Gateway])
		if err != nil {
			return err
		}
		if decision == services.SettlementDuplicate {
			return nil
		}

		now := Now(l.Clock)
		next := current
		next.Status = target
		next.UpdatedAt = now
		if next.GatewayReference == "" {
			next.GatewayReference = input.Reference
		}
		switch target {
		case entities.TransactionStatusCaptured:
			next.CapturedAt = &now
		case entities.TransactionStatusRefunded:
			next.RefundedAt = &now
		case entities.TransactionStatusFailed:
			next.FailureReason = firstNonEmpty(input.Reason, "gateway reported failure")
		}
		if err := l.Transactions.UpdateTransaction(ctx, next, current.Status); err != nil {
			return err
		}
		if _, err := l.Audit.Append(ctx, AuditRecord{
			EntityType: entities.AuditEntityTransaction,
			EntityID:   next.TransactionID,
			Action:     transactionAction(target),
			ActorID:    entities.SystemActor,
			Reason:     input.Reason,
			Before:     SnapshotTransaction(current),
			After:      SnapshotTransaction(next),
		}); err != nil {
			return err
		}
		if err := l.emit(ctx, transactionEventUpdated, next, entities.SystemActor, input.Reason); err != nil {
			return err
		}
		result.Transaction = next
		result.Applied = true
		return nil
	})
	if err != nil {
		return result, err
	}

	if !result.Applied {
		logger.Info("gateway event already reflected in ledger",
			"event", "settlement_gateway_event_duplicate",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"transaction_id", result.Transaction.TransactionID,
			"event_type", input.EventType,
			"status", result.Transaction.Status,
			"detail", domainerrors.ErrDuplicateEvent.Error(),
		)
		return result, nil
	}
	logger.Info("gateway event applied",
		"event", "settlement_gateway_event_applied",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"transaction_id", result.Transaction.TransactionID,
		"from_status", result.PreviousStatus,
		"to_status", result.Transaction.Status,
	)
	return result, nil
}

// Refund moves a captured transaction to refunded. Refunding twice is a no-op.
func (l Ledger) Refund(ctx context.Context, transactionID string, actorID string, reason string) (entities.Transaction, error) {
	var refunded entities.Transaction
	err := l.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := l.Transactions.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		switch current.Status {
		case entities.TransactionStatusRefunded:
			refunded = current
			return nil
		case entities.TransactionStatusCaptured:
		default:
			return fmt.Errorf("%w: refund requires captured, transaction is %s; cancel it instead",
				domainerrors.ErrTransactionTransition, current.Status)
		}
		now := Now(l.Clock)
		if l.RefundWindow > 0 && current.CapturedAt != nil && now.After(current.CapturedAt.Add(l.RefundWindow)) {
			return domainerrors.ErrRefundWindowElapsed
		}

		next := current
		next.Status = entities.TransactionStatusRefunded
		next.RefundedAt = &now
		next.UpdatedAt = now
		if err := l.Transactions.UpdateTransaction(ctx, next, current.Status); err != nil {
			return err
		}
		if _, err := l.Audit.Append(ctx, AuditRecord{
			EntityType: entities.AuditEntityTransaction,
			EntityID:   next.TransactionID,
			Action:     entities.ActionTransactionRefunded,
			ActorID:    actorID,
			Reason:     reason,
			Before:     SnapshotTransaction(current),
			After:      SnapshotTransaction(next),
		}); err != nil {
			return err
		}
		refunded = next
		return l.emit(ctx, transactionEventRefunded, next, actorID, reason)
	})
	if err != nil {
		return entities.Transaction{}, err
	}
	return refunded, nil
}

// Cancel fails an open transaction. It must run inside the caller's
// transaction. A captured transaction cannot be cancelled; it needs a refund.
func (l Ledger) Cancel(ctx context.Context, txn entities.Transaction, actorID string, reason string) (entities.Transaction, error) {
	switch txn.Status {
	case entities.TransactionStatusFailed:
		return txn, nil
	case entities.TransactionStatusCaptured:
		return entities.Transaction{}, domainerrors.ErrRefundRequired
	case entities.TransactionStatusRefunded:
		return entities.Transaction{}, fmt.Errorf("%w: transaction already refunded", domainerrors.ErrTransactionTransition)
	}

	now := Now(l.Clock)
	next := txn
	next.Status = entities.TransactionStatusFailed
	next.FailureReason = firstNonEmpty(reason, "cancelled")
	next.UpdatedAt = now
	if err := l.Transactions.UpdateTransaction(ctx, next, txn.Status); err != nil {
		return entities.Transaction{}, err
	}
	if _, err := l.Audit.Append(ctx, AuditRecord{
		EntityType: entities.AuditEntityTransaction,
		EntityID:   next.TransactionID,
		Action:     entities.ActionTransactionCancelled,
		ActorID:    actorID,
		Reason:     reason,
		Before:     SnapshotTransaction(txn),
		After:      SnapshotTransaction(next),
	}); err != nil {
		return entities.Transaction{}, err
	}
	if err := l.emit(ctx, transactionEventUpdated, next, actorID, reason); err != nil {
		return entities.Transaction{}, err
	}
	return next, nil
}

func (l Ledger) emit(ctx context.Context, eventType string, txn entities.Transaction, actorID string, reason string) error {
	return EmitOutbox(ctx, l.Outbox, l.IDGenerator, ports.OutboxEvent{
		EventType:  eventType,
		EntityType: entities.AuditEntityTransaction,
		EntityID:   txn.TransactionID,
		ListingID:  txn.ListingID,
		ActorID:    firstNonEmpty(actorID, entities.SystemActor),
		Status:     string(txn.Status),
		Reason:     reason,
		OccurredAt: txn.UpdatedAt,
	})
}

func transactionAction(status entities.TransactionStatus) string {
	switch status {
	case entities.TransactionStatusAuthorized:
		return entities.ActionTransactionAuthorized
	case entities.TransactionStatusCaptured:
		return entities.ActionTransactionCaptured
	case entities.TransactionStatusRefunded:
		return entities.ActionTransactionRefunded
	default:
		return entities.ActionTransactionFailed
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
