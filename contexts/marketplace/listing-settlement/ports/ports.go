package ports

//go:generate mockgen -destination=mocks/ports_mock.go -package=mocks key2key/contexts/marketplace/listing-settlement/ports PaymentGateway,Notifier,OperatorAlerter

import (
	"context"
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	contractsv1 "key2key/contracts/gen/events/v1"

	"github.com/shopspring/decimal"
)

// TxRunner opens a storage transaction. Repositories called with the context
// handed to fn join that transaction; nested calls reuse the outer one.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ListingRepository persists listings. UpdateListing is a compare-and-swap on
// version: it must fail with ErrVersionConflict when the stored version is not
// expectedVersion.
type ListingRepository interface {
	CreateListing(ctx context.Context, listing entities.Listing) error
	GetListing(ctx context.Context, listingID string) (entities.Listing, error)
	UpdateListing(ctx context.Context, listing entities.Listing, expectedVersion int64) error
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]entities.Listing, error)
}

// TransactionRepository persists ledger rows. CreateTransaction must surface
// ErrIdempotencyKeyConflict on a duplicate key and ErrOpenTransactionExists
// when another open transaction references the listing. UpdateTransaction is
// a compare-and-swap on status.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, txn entities.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (entities.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (entities.Transaction, bool, error)
	GetOpenTransactionForListing(ctx context.Context, listingID string) (entities.Transaction, bool, error)
	UpdateTransaction(ctx context.Context, txn entities.Transaction, expectedStatus entities.TransactionStatus) error
	ListOpenTransactionsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entities.Transaction, error)
	// ListCapturedAwaitingSettlement returns captured transactions whose listing
	// is still under_transaction (the pending half of the settlement saga).
	ListCapturedAwaitingSettlement(ctx context.Context, limit int) ([]entities.Transaction, error)
}

// AssignmentRepository persists lead assignments. CreateAssignment must surface
// ErrActiveAssignmentExists when the listing already has an active row.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, assignment entities.LeadAssignment) error
	GetAssignment(ctx context.Context, assignmentID string) (entities.LeadAssignment, error)
	GetActiveAssignment(ctx context.Context, listingID string) (entities.LeadAssignment, bool, error)
	UpdateAssignment(ctx context.Context, assignment entities.LeadAssignment, expectedStatus entities.AssignmentStatus) error
	CountActiveByBroker(ctx context.Context, brokerIDs []string) (map[string]int, error)
	ListStaleAssignments(ctx context.Context, assignedBefore time.Time, limit int) ([]entities.LeadAssignment, error)
	ListAssignmentsByListing(ctx context.Context, listingID string) ([]entities.LeadAssignment, error)
}

// AuditRepository is the append-only audit arena. AppendAudit assigns the
// next sequence number and returns the stored entry.
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry entities.AuditEntry) (entities.AuditEntry, error)
	ListAuditByEntity(ctx context.Context, entityType entities.AuditEntityType, entityID string) ([]entities.AuditEntry, error)
	LatestAuditForEntity(ctx context.Context, entityType entities.AuditEntityType, entityID string) (entities.AuditEntry, bool, error)
}

// QuarantineStore records entities whose history failed verification.
type QuarantineStore interface {
	Quarantine(ctx context.Context, entityType entities.AuditEntityType, entityID string, reason string, at time.Time) error
	IsQuarantined(ctx context.Context, entityType entities.AuditEntityType, entityID string) (bool, error)
}

// OutboxEvent is the integration event persisted with a committed transition.
type OutboxEvent struct {
	EventID      string
	EventType    string
	EntityType   entities.AuditEntityType
	EntityID     string
	ListingID    string
	ActorID      string
	Status       string
	Reason       string
	PartitionKey string
	OccurredAt   time.Time
}

// SettlementEventData is the envelope data published for an OutboxEvent.
type SettlementEventData struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ListingID  string `json:"listing_id"`
	ActorID    string `json:"actor_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

func (e OutboxEvent) Data() SettlementEventData {
	return SettlementEventData{
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		ListingID:  e.ListingID,
		ActorID:    e.ActorID,
		Status:     e.Status,
		Reason:     e.Reason,
	}
}

// OutboxWriter must be called inside the transition's transaction.
type OutboxWriter interface {
	AppendOutbox(ctx context.Context, event OutboxEvent) error
}

// OutboxMessage is a row ready to relay from the settlement outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

type EventOutcome string

const (
	EventOutcomeApplied   EventOutcome = "applied"
	EventOutcomeDuplicate EventOutcome = "duplicate"
	EventOutcomeRejected  EventOutcome = "rejected"
)

// IdempotencyRecord is the cached outcome of a processed gateway event.
type IdempotencyRecord struct {
	Key               string
	PayloadHash       string
	Outcome           EventOutcome
	TransactionID     string
	TransactionStatus entities.TransactionStatus
	ExpiresAt         time.Time
}

// IdempotencyStore is the durable dedup store consulted by the webhook worker.
// Put must not overwrite an existing live record.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// GatewayStatus is the gateway's view of a payment intent.
type GatewayStatus struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
}

// PaymentGateway is the external payment adapter.
type PaymentGateway interface {
	Initiate(ctx context.Context, amount decimal.Decimal, currency string, idempotencyKey string) (string, error)
	Status(ctx context.Context, idempotencyKey string) (GatewayStatus, error)
}

// EligibilityProvider is the read-only broker directory.
type EligibilityProvider interface {
	EligibleBrokers(ctx context.Context, region string, kind entities.ListingKind) ([]entities.Broker, error)
}

// Notification is what the dispatcher hands to the delivery channel.
type Notification struct {
	EventID   string
	EventType string
	ListingID string
	EntityID  string
	Status    string
	Reason    string
}

// Notifier delivers notifications. Failures never affect committed state.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// OperatorAlerter raises alerts that need a human (fatal consistency, money
// captured against a cancelled listing).
type OperatorAlerter interface {
	Alert(ctx context.Context, severity string, message string, attrs map[string]string)
}

// SweepLock ensures only one worker replica runs a sweep at a time.
// TryLock returns a release func when the lock was obtained.
type SweepLock interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error)
}

// Clock allows deterministic testing of TTL/expiry rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts listing/transaction/audit identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// DecodeEnvelope parses and validates a serialized envelope.
func DecodeEnvelope(payload []byte) (EventEnvelope, error) {
	return contractsv1.Decode(payload)
}

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
