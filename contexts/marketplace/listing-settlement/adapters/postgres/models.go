package postgresadapter

import (
	"encoding/json"
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type listingModel struct {
	ListingID            string          `gorm:"column:listing_id;primaryKey"`
	Kind                 string          `gorm:"column:kind"`
	OfferType            string          `gorm:"column:offer_type"`
	Status               string          `gorm:"column:status"`
	Title                string          `gorm:"column:title"`
	Region               string          `gorm:"column:region"`
	OwnerID              string          `gorm:"column:owner_id"`
	BrokerID             string          `gorm:"column:broker_id"`
	Price                decimal.Decimal `gorm:"column:price;type:numeric(20,2)"`
	Currency             string          `gorm:"column:currency"`
	ReservedBy           string          `gorm:"column:reserved_by"`
	ReservationExpiresAt *time.Time      `gorm:"column:reservation_expires_at"`
	TransactionID        string          `gorm:"column:transaction_id"`
	CancelReason         string          `gorm:"column:cancel_reason"`
	Version              int64           `gorm:"column:version"`
	CreatedAt            time.Time       `gorm:"column:created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at"`
}

func (listingModel) TableName() string {
	return "listings"
}

func listingModelFromEntity(listing entities.Listing) listingModel {
	return listingModel{
		ListingID:            listing.ListingID,
		Kind:                 string(listing.Kind),
		OfferType:            string(listing.OfferType),
		Status:               string(listing.Status),
		Title:                listing.Title,
		Region:               listing.Region,
		OwnerID:              listing.OwnerID,
		BrokerID:             listing.BrokerID,
		Price:                listing.Price,
		Currency:             listing.Currency,
		ReservedBy:           listing.ReservedBy,
		ReservationExpiresAt: utcPtr(listing.ReservationExpiresAt),
		TransactionID:        listing.TransactionID,
		CancelReason:         listing.CancelReason,
		Version:              listing.Version,
		CreatedAt:            listing.CreatedAt.UTC(),
		UpdatedAt:            listing.UpdatedAt.UTC(),
	}
}

func (m listingModel) toEntity() entities.Listing {
	return entities.Listing{
		ListingID:            m.ListingID,
		Kind:                 entities.ListingKind(m.Kind),
		OfferType:            entities.OfferType(m.OfferType),
		Status:               entities.ListingStatus(m.Status),
		Title:                m.Title,
		Region:               m.Region,
		OwnerID:              m.OwnerID,
		BrokerID:             m.BrokerID,
		Price:                m.Price,
		Currency:             m.Currency,
		ReservedBy:           m.ReservedBy,
		ReservationExpiresAt: utcPtr(m.ReservationExpiresAt),
		TransactionID:        m.TransactionID,
		CancelReason:         m.CancelReason,
		Version:              m.Version,
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

type transactionModel struct {
	TransactionID    string          `gorm:"column:transaction_id;primaryKey"`
	ListingID        string          `gorm:"column:listing_id"`
	BuyerID          string          `gorm:"column:buyer_id"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(20,2)"`
	Currency         string          `gorm:"column:currency"`
	Status           string          `gorm:"column:status"`
	Gateway          string          `gorm:"column:gateway"`
	GatewayReference string          `gorm:"column:gateway_reference"`
	IdempotencyKey   string          `gorm:"column:idempotency_key"`
	FailureReason    string          `gorm:"column:failure_reason"`
	CapturedAt       *time.Time      `gorm:"column:captured_at"`
	RefundedAt       *time.Time      `gorm:"column:refunded_at"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (transactionModel) TableName() string {
	return "transactions"
}

func transactionModelFromEntity(txn entities.Transaction) transactionModel {
	return transactionModel{
		TransactionID:    txn.TransactionID,
		ListingID:        txn.ListingID,
		BuyerID:          txn.BuyerID,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
		Status:           string(txn.Status),
		Gateway:          string(txn.Gateway),
		GatewayReference: txn.GatewayReference,
		IdempotencyKey:   txn.IdempotencyKey,
		FailureReason:    txn.FailureReason,
		CapturedAt:       utcPtr(txn.CapturedAt),
		RefundedAt:       utcPtr(txn.RefundedAt),
		CreatedAt:        txn.CreatedAt.UTC(),
		UpdatedAt:        txn.UpdatedAt.UTC(),
	}
}

func (m transactionModel) toEntity() entities.Transaction {
	return entities.Transaction{
		TransactionID:    m.TransactionID,
		ListingID:        m.ListingID,
		BuyerID:          m.BuyerID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Status:           entities.TransactionStatus(m.Status),
		Gateway:          entities.PaymentGateway(m.Gateway),
		GatewayReference: m.GatewayReference,
		IdempotencyKey:   m.IdempotencyKey,
		FailureReason:    m.FailureReason,
		CapturedAt:       utcPtr(m.CapturedAt),
		RefundedAt:       utcPtr(m.RefundedAt),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func transactionsToEntities(rows []transactionModel) []entities.Transaction {
	items := make([]entities.Transaction, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

type assignmentModel struct {
	AssignmentID   string     `gorm:"column:assignment_id;primaryKey"`
	ListingID      string     `gorm:"column:listing_id"`
	BrokerID       string     `gorm:"column:broker_id"`
	Status         string     `gorm:"column:status"`
	AssignedAt     time.Time  `gorm:"column:assigned_at"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at"`
	ReleasedAt     *time.Time `gorm:"column:released_at"`
	ReleaseReason  string     `gorm:"column:release_reason"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (assignmentModel) TableName() string {
	return "lead_assignments"
}

func assignmentModelFromEntity(assignment entities.LeadAssignment) assignmentModel {
	return assignmentModel{
		AssignmentID:   assignment.AssignmentID,
		ListingID:      assignment.ListingID,
		BrokerID:       assignment.BrokerID,
		Status:         string(assignment.Status),
		AssignedAt:     assignment.AssignedAt.UTC(),
		AcknowledgedAt: utcPtr(assignment.AcknowledgedAt),
		ReleasedAt:     utcPtr(assignment.ReleasedAt),
		ReleaseReason:  assignment.ReleaseReason,
		UpdatedAt:      assignment.UpdatedAt.UTC(),
	}
}

func (m assignmentModel) toEntity() entities.LeadAssignment {
	return entities.LeadAssignment{
		AssignmentID:   m.AssignmentID,
		ListingID:      m.ListingID,
		BrokerID:       m.BrokerID,
		Status:         entities.AssignmentStatus(m.Status),
		AssignedAt:     m.AssignedAt.UTC(),
		AcknowledgedAt: utcPtr(m.AcknowledgedAt),
		ReleasedAt:     utcPtr(m.ReleasedAt),
		ReleaseReason:  m.ReleaseReason,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func assignmentsToEntities(rows []assignmentModel) []entities.LeadAssignment {
	items := make([]entities.LeadAssignment, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

// auditModel maps the append-only audit_log table. sequence_number is a
// bigserial and never written by the application.
type auditModel struct {
	AuditID    string         `gorm:"column:audit_id;primaryKey"`
	Sequence   int64          `gorm:"column:sequence_number;<-:false"`
	EntityType string         `gorm:"column:entity_type"`
	EntityID   string         `gorm:"column:entity_id"`
	Action     string         `gorm:"column:action"`
	ActorID    string         `gorm:"column:actor_id"`
	Reason     string         `gorm:"column:reason"`
	Before     datatypes.JSON `gorm:"column:before_state;type:jsonb"`
	After      datatypes.JSON `gorm:"column:after_state;type:jsonb"`
	OccurredAt time.Time      `gorm:"column:occurred_at"`
}

func (auditModel) TableName() string {
	return "audit_log"
}

func auditModelFromEntity(entry entities.AuditEntry) auditModel {
	return auditModel{
		AuditID:    entry.AuditID,
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		Reason:     entry.Reason,
		Before:     datatypes.JSON(entry.Before),
		After:      datatypes.JSON(entry.After),
		OccurredAt: entry.OccurredAt.UTC(),
	}
}

func (m auditModel) toEntity() entities.AuditEntry {
	return entities.AuditEntry{
		AuditID:    m.AuditID,
		Sequence:   m.Sequence,
		EntityType: entities.AuditEntityType(m.EntityType),
		EntityID:   m.EntityID,
		Action:     m.Action,
		ActorID:    m.ActorID,
		Reason:     m.Reason,
		Before:     rawOrNil(m.Before),
		After:      rawOrNil(m.After),
		OccurredAt: m.OccurredAt.UTC(),
	}
}

type quarantineModel struct {
	EntityType    string    `gorm:"column:entity_type;primaryKey"`
	EntityID      string    `gorm:"column:entity_id;primaryKey"`
	Reason        string    `gorm:"column:reason"`
	QuarantinedAt time.Time `gorm:"column:quarantined_at"`
}

func (quarantineModel) TableName() string {
	return "entity_quarantine"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "settlement_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type idempotencyModel struct {
	Key               string    `gorm:"column:key;primaryKey"`
	PayloadHash       string    `gorm:"column:payload_hash"`
	Outcome           string    `gorm:"column:outcome"`
	TransactionID     string    `gorm:"column:transaction_id"`
	TransactionStatus string    `gorm:"column:transaction_status"`
	ExpiresAt         time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "settlement_idempotency"
}

func idempotencyModelFromPort(record ports.IdempotencyRecord) idempotencyModel {
	return idempotencyModel{
		Key:               record.Key,
		PayloadHash:       record.PayloadHash,
		Outcome:           string(record.Outcome),
		TransactionID:     record.TransactionID,
		TransactionStatus: string(record.TransactionStatus),
		ExpiresAt:         record.ExpiresAt.UTC(),
	}
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:               m.Key,
		PayloadHash:       m.PayloadHash,
		Outcome:           ports.EventOutcome(m.Outcome),
		TransactionID:     m.TransactionID,
		TransactionStatus: entities.TransactionStatus(m.TransactionStatus),
		ExpiresAt:         m.ExpiresAt.UTC(),
	}
}

type brokerModel struct {
	BrokerID      string                      `gorm:"column:broker_id;primaryKey"`
	Regions       datatypes.JSONSlice[string] `gorm:"column:regions;type:jsonb"`
	Kinds         datatypes.JSONSlice[string] `gorm:"column:kinds;type:jsonb"`
	Available     bool                        `gorm:"column:available"`
	Verified      bool                        `gorm:"column:verified"`
	MaxActiveLoad int                         `gorm:"column:max_active_load"`
}

func (brokerModel) TableName() string {
	return "brokers"
}

func (m brokerModel) toEntity() entities.Broker {
	kinds := make([]entities.ListingKind, 0, len(m.Kinds))
	for _, kind := range m.Kinds {
		kinds = append(kinds, entities.ListingKind(kind))
	}
	return entities.Broker{
		BrokerID:      m.BrokerID,
		Regions:       append([]string(nil), m.Regions...),
		Kinds:         kinds,
		Available:     m.Available,
		Verified:      m.Verified,
		MaxActiveLoad: m.MaxActiveLoad,
	}
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func rawOrNil(value datatypes.JSON) json.RawMessage {
	if len(value) == 0 {
		return nil
	}
	return json.RawMessage(append([]byte(nil), value...))
}
