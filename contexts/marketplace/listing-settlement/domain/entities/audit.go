package entities

import (
	"encoding/json"
	"time"
)

type AuditEntityType string

const (
	AuditEntityListing      AuditEntityType = "listing"
	AuditEntityTransaction  AuditEntityType = "transaction"
	AuditEntityAssignment   AuditEntityType = "lead_assignment"
	AuditEntityGatewayEvent AuditEntityType = "gateway_event"
)

// SystemActor is recorded for transitions driven by sweeps and webhooks.
const SystemActor = "system"

// AuditEntry is immutable once appended; Sequence is assigned by the store.
type AuditEntry struct {
	AuditID    string
	Sequence   int64
	EntityType AuditEntityType
	EntityID   string
	Action     string
	ActorID    string
	Reason     string
	Before     json.RawMessage
	After      json.RawMessage
	OccurredAt time.Time
}

// Audit actions.
const (
	ActionListingCreated   = "listing_created"
	ActionListingPublished = "listing_published"
	ActionListingReserved  = "listing_reserved"
	ActionListingUnderTx   = "listing_under_transaction"
	ActionListingSettled   = "listing_settled"
	ActionListingCancelled = "listing_cancelled"
	ActionListingArchived  = "listing_archived"
	ActionReservationTTL   = "reservation_expired"
	ActionBrokerAssigned   = "listing_broker_assigned"
	ActionPaymentFailed    = "listing_payment_failed"

	ActionTransactionOpened     = "transaction_opened"
	ActionGatewayInitiated      = "gateway_initiated"
	ActionTransactionAuthorized = "transaction_authorized"
	ActionTransactionCaptured   = "transaction_captured"
	ActionTransactionFailed     = "transaction_failed"
	ActionTransactionRefunded   = "transaction_refunded"
	ActionTransactionCancelled  = "transaction_cancelled"

	ActionAssignmentCreated      = "assignment_created"
	ActionAssignmentAcknowledged = "assignment_acknowledged"
	ActionAssignmentReleased     = "assignment_released"
	ActionAssignmentCompleted    = "assignment_completed"

	ActionWebhookRejected = "webhook_rejected"
	ActionCompensation    = "compensation"
)
