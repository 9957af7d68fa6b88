package workers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/shopspring/decimal"
)

type WebhookOutcome struct {
	Outcome           ports.EventOutcome
	TransactionID     string
	TransactionStatus entities.TransactionStatus
	// Cached is set when the outcome came from the dedup store.
	Cached bool
}

// WebhookProcessor applies gateway events exactly once:
// 1) signature check before any field is trusted
// 2) dedup lookup keyed by idempotency key and event type
// 3) ledger apply, committed before the sender is acknowledged
// 4) listing settlement on capture, retried off the ledger's state.
type WebhookProcessor struct {
	Secret          string
	Dedup           ports.IdempotencyStore
	Ledger          application.Ledger
	Machine         commands.ListingStateMachine
	Audit           application.AuditWriter
	Alerter         ports.OperatorAlerter
	Clock           ports.Clock
	DedupTTL        time.Duration
	CompletionRetry application.RetryPolicy
	Metrics         *application.SettlementMetrics
	Logger          *slog.Logger
}

// Handle processes a webhook delivery. Rejected events return an error that
// wraps ErrValidation; the sender must not retry them. Any other error means
// nothing was committed and redelivery is safe.
func (p WebhookProcessor) Handle(ctx context.Context, event GatewayEvent) (WebhookOutcome, error) {
	if !VerifyGatewayEvent(p.Secret, event) {
		return p.reject(ctx, event, "", domainerrors.ErrInvalidSignature)
	}
	return p.apply(ctx, event)
}

// ApplyTrusted runs the dedup and apply path for events the engine fetched
// from the gateway itself, such as reconciliation status polls.
func (p WebhookProcessor) ApplyTrusted(ctx context.Context, event GatewayEvent) (WebhookOutcome, error) {
	event.trusted = true
	return p.apply(ctx, event)
}

func (p WebhookProcessor) apply(ctx context.Context, event GatewayEvent) (WebhookOutcome, error) {
	logger := application.ResolveLogger(p.Logger)
	now := application.Now(p.Clock)

	eventType, ok := services.ParseGatewayEventType(strings.ToLower(strings.TrimSpace(event.EventType)))
	if !ok || strings.TrimSpace(event.IdempotencyKey) == "" {
		return p.reject(ctx, event, "", domainerrors.ErrMalformedEvent)
	}
	if _, err := time.Parse(time.RFC3339, event.Timestamp); err != nil {
		return p.reject(ctx, event, "", domainerrors.ErrMalformedEvent)
	}
	var amount *decimal.Decimal
	if strings.TrimSpace(event.Amount) != "" {
		parsed, err := decimal.NewFromString(event.Amount)
		if err != nil {
			return p.reject(ctx, event, "", domainerrors.ErrMalformedEvent)
		}
		amount = &parsed
	}

	dedupKey := event.IdempotencyKey + ":" + string(eventType)
	record, found, err := p.Dedup.Get(ctx, dedupKey, now)
	if err != nil {
		logger.Error("dedup lookup failed",
			"event", "settlement_webhook_dedup_get_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"idempotency_key", event.IdempotencyKey,
			"error", err.Error(),
		)
		return WebhookOutcome{}, err
	}
	if found {
		outcome := WebhookOutcome{
			Outcome:           record.Outcome,
			TransactionID:     record.TransactionID,
			TransactionStatus: record.TransactionStatus,
			Cached:            true,
		}
		if hash := payloadHash(event); hash != "" && record.PayloadHash != "" && hash != record.PayloadHash {
			p.Metrics.RecordWebhook(ctx, string(eventType), string(ports.EventOutcomeRejected))
			logger.Warn("gateway event differs from the delivery already processed under its key",
				"event", "settlement_webhook_payload_mismatch",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"idempotency_key", event.IdempotencyKey,
				"event_type", eventType,
				"cached_outcome", record.Outcome,
			)
			outcome.Outcome = ports.EventOutcomeRejected
			return outcome, domainerrors.ErrEventPayloadMismatch
		}
		p.Metrics.RecordWebhook(ctx, string(eventType), "cached")
		logger.Info("gateway event replayed from dedup store",
			"event", "settlement_webhook_duplicate",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"idempotency_key", event.IdempotencyKey,
			"event_type", eventType,
			"outcome", record.Outcome,
		)
		if record.Outcome == ports.EventOutcomeRejected {
			return outcome, domainerrors.ErrMalformedEvent
		}
		return outcome, nil
	}

	result, err := p.Ledger.ApplyGatewayEvent(ctx, application.GatewayEventInput{
		IdempotencyKey: event.IdempotencyKey,
		EventType:      eventType,
		Reference:      event.Reference,
		Amount:         amount,
		Currency:       strings.ToUpper(strings.TrimSpace(event.Currency)),
		Reason:         event.Status,
	})
	switch {
	case err == nil:
	case errors.Is(err, domainerrors.ErrTransactionNotFound),
		errors.Is(err, domainerrors.ErrEventAmountMismatch),
		errors.Is(err, domainerrors.ErrInvalidTransition):
		if eventType == services.GatewayEventCaptured && result.PreviousStatus == entities.TransactionStatusFailed {
			p.alert(ctx, "gateway captured funds for a failed transaction, refund at the gateway", result.Transaction, event)
		}
		// Payload faults and rejections against a final transaction are
		// cached. Any other transition rejected now may become legal once an
		// earlier event arrives.
		cacheKey := ""
		if errors.Is(err, domainerrors.ErrValidation) || result.PreviousStatus.IsFinal() {
			cacheKey = dedupKey
		}
		outcome, rejectErr := p.reject(ctx, event, cacheKey, err)
		outcome.TransactionID = result.Transaction.TransactionID
		outcome.TransactionStatus = result.Transaction.Status
		return outcome, rejectErr
	default:
		logger.Error("gateway event apply failed",
			"event", "settlement_webhook_apply_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"idempotency_key", event.IdempotencyKey,
			"event_type", eventType,
			"error", err.Error(),
		)
		return WebhookOutcome{}, err
	}

	txn := result.Transaction
	outcome := WebhookOutcome{
		Outcome:           ports.EventOutcomeApplied,
		TransactionID:     txn.TransactionID,
		TransactionStatus: txn.Status,
	}
	if !result.Applied {
		outcome.Outcome = ports.EventOutcomeDuplicate
	}

	switch {
	case txn.Status == entities.TransactionStatusCaptured && eventType == services.GatewayEventCaptured:
		p.settleListing(ctx, txn, event)
	case result.Applied && txn.Status == entities.TransactionStatusFailed:
		if _, err := p.Machine.ReleaseFailedPayment(ctx, txn.ListingID, txn.TransactionID, txn.FailureReason); err != nil {
			logger.Warn("listing release after failed payment did not complete",
				"event", "settlement_webhook_release_failed",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"listing_id", txn.ListingID,
				"transaction_id", txn.TransactionID,
				"error", err.Error(),
			)
		}
	}

	p.remember(ctx, dedupKey, event, outcome, now)
	p.Metrics.RecordWebhook(ctx, string(eventType), string(outcome.Outcome))
	return outcome, nil
}

// settleListing is the second half of the saga. The ledger already holds the
// capture, so failures here are logged and left to the settlement completer.
func (p WebhookProcessor) settleListing(ctx context.Context, txn entities.Transaction, event GatewayEvent) {
	logger := application.ResolveLogger(p.Logger)
	err := p.CompletionRetry.Do(ctx, application.IsRetryableConflict, func(ctx context.Context) error {
		_, err := p.Machine.CompleteTransaction(ctx, commands.CompleteTransactionCommand{
			ListingID:     txn.ListingID,
			TransactionID: txn.TransactionID,
		})
		return err
	})
	if err == nil {
		return
	}
	if errors.Is(err, domainerrors.ErrListingTransition) {
		p.alert(ctx, "captured payment cannot settle listing", txn, event)
	}
	logger.Error("listing settlement deferred",
		"event", "settlement_webhook_completion_deferred",
		"module", "marketplace/listing-settlement",
		"layer", "worker",
		"listing_id", txn.ListingID,
		"transaction_id", txn.TransactionID,
		"error", err.Error(),
	)
}

func (p WebhookProcessor) reject(ctx context.Context, event GatewayEvent, dedupKey string, cause error) (WebhookOutcome, error) {
	logger := application.ResolveLogger(p.Logger)
	entityID := firstNonEmpty(event.IdempotencyKey, event.Reference, "unknown")
	logger.Warn("gateway event rejected",
		"event", "settlement_webhook_rejected",
		"module", "marketplace/listing-settlement",
		"layer", "worker",
		"idempotency_key", event.IdempotencyKey,
		"reference", event.Reference,
		"event_type", event.EventType,
		"error", cause.Error(),
	)
	if _, err := p.Audit.Append(ctx, application.AuditRecord{
		EntityType: entities.AuditEntityGatewayEvent,
		EntityID:   entityID,
		Action:     entities.ActionWebhookRejected,
		ActorID:    entities.SystemActor,
		Reason:     cause.Error(),
		After: map[string]string{
			"event_type":      event.EventType,
			"reference":       event.Reference,
			"idempotency_key": event.IdempotencyKey,
			"status":          event.Status,
			"amount":          event.Amount,
			"currency":        event.Currency,
			"timestamp":       event.Timestamp,
		},
	}); err != nil {
		return WebhookOutcome{}, err
	}

	outcome := WebhookOutcome{Outcome: ports.EventOutcomeRejected}
	if dedupKey != "" {
		p.remember(ctx, dedupKey, event, outcome, application.Now(p.Clock))
	}
	p.Metrics.RecordWebhook(ctx, event.EventType, string(ports.EventOutcomeRejected))
	if errors.Is(cause, domainerrors.ErrValidation) {
		return outcome, cause
	}
	return outcome, errors.Join(domainerrors.ErrMalformedEvent, cause)
}

// remember caches the outcome. A failed write is only logged: the ledger's
// status compare-and-swap still blocks a second application.
func (p WebhookProcessor) remember(ctx context.Context, key string, event GatewayEvent, outcome WebhookOutcome, now time.Time) {
	err := p.Dedup.Put(ctx, ports.IdempotencyRecord{
		Key:               key,
		PayloadHash:       payloadHash(event),
		Outcome:           outcome.Outcome,
		TransactionID:     outcome.TransactionID,
		TransactionStatus: outcome.TransactionStatus,
		ExpiresAt:         now.Add(p.dedupTTL()),
	})
	if err != nil {
		application.ResolveLogger(p.Logger).Warn("dedup record write failed",
			"event", "settlement_webhook_dedup_put_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"dedup_key", key,
			"error", err.Error(),
		)
	}
}

func (p WebhookProcessor) alert(ctx context.Context, message string, txn entities.Transaction, event GatewayEvent) {
	application.ResolveLogger(p.Logger).Error(message,
		"event", "settlement_operator_alert",
		"module", "marketplace/listing-settlement",
		"layer", "worker",
		"transaction_id", txn.TransactionID,
		"listing_id", txn.ListingID,
		"idempotency_key", event.IdempotencyKey,
	)
	if p.Alerter == nil {
		return
	}
	p.Alerter.Alert(ctx, "high", message, map[string]string{
		"transaction_id":  txn.TransactionID,
		"listing_id":      txn.ListingID,
		"idempotency_key": event.IdempotencyKey,
		"reference":       event.Reference,
	})
}

func (p WebhookProcessor) dedupTTL() time.Duration {
	if p.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return p.DedupTTL
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
