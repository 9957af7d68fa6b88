package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
	"key2key/internal/shared/events"
	"key2key/internal/shared/outbox"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	sourceService    = "listing-settlement-service"
	partitionKeyPath = "listing_id"

	constraintIdempotencyKey   = "transactions_idempotency_key_key"
	constraintOpenTransaction  = "transactions_one_open_per_listing"
	constraintActiveAssignment = "lead_assignments_one_active_per_listing"
)

type txKey struct{}

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// WithTx runs fn in one database transaction. Repository calls made with the
// context handed to fn join it; a nested WithTx reuses the outer one.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// forUpdate locks the selected rows when called inside a transaction.
func forUpdate(ctx context.Context, q *gorm.DB) *gorm.DB {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *Repository) CreateListing(ctx context.Context, listing entities.Listing) error {
	row := listingModelFromEntity(listing)
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariant
		}
		return err
	}
	return nil
}

func (r *Repository) GetListing(ctx context.Context, listingID string) (entities.Listing, error) {
	var row listingModel
	err := forUpdate(ctx, r.conn(ctx)).
		Where("listing_id = ?", listingID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Listing{}, domainerrors.ErrListingNotFound
		}
		return entities.Listing{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) UpdateListing(ctx context.Context, listing entities.Listing, expectedVersion int64) error {
	row := listingModelFromEntity(listing)
	result := r.conn(ctx).
		Model(&listingModel{}).
		Where("listing_id = ? AND version = ?", listing.ListingID, expectedVersion).
		Select("*").
		Omit("listing_id", "created_at").
		Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.conn(ctx).Model(&listingModel{}).Where("listing_id = ?", listing.ListingID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domainerrors.ErrListingNotFound
		}
		return domainerrors.ErrVersionConflict
	}
	return nil
}

func (r *Repository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]entities.Listing, error) {
	var rows []listingModel
	if err := r.conn(ctx).
		Where("status = ? AND reservation_expires_at <= ?", string(entities.ListingStatusReserved), now.UTC()).
		Order("reservation_expires_at ASC").
		Limit(batchLimit(limit)).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.Listing, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, txn entities.Transaction) error {
	row := transactionModelFromEntity(txn)
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			switch constraintName(err) {
			case constraintIdempotencyKey:
				return domainerrors.ErrIdempotencyKeyConflict
			case constraintOpenTransaction:
				return domainerrors.ErrOpenTransactionExists
			}
			return domainerrors.ErrRepositoryInvariant
		}
		return err
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, transactionID string) (entities.Transaction, error) {
	var row transactionModel
	err := forUpdate(ctx, r.conn(ctx)).
		Where("transaction_id = ?", transactionID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Transaction{}, domainerrors.ErrTransactionNotFound
		}
		return entities.Transaction{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (entities.Transaction, bool, error) {
	return r.findTransaction(ctx, "idempotency_key = ?", key)
}

func (r *Repository) GetOpenTransactionForListing(ctx context.Context, listingID string) (entities.Transaction, bool, error) {
	return r.findTransaction(ctx, "listing_id = ? AND status IN ?", listingID, openStatuses())
}

func (r *Repository) findTransaction(ctx context.Context, query string, args ...any) (entities.Transaction, bool, error) {
	var row transactionModel
	err := forUpdate(ctx, r.conn(ctx)).
		Where(query, args...).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Transaction{}, false, nil
		}
		return entities.Transaction{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) UpdateTransaction(
	ctx context.Context,
	txn entities.Transaction,
	expectedStatus entities.TransactionStatus,
) error {
	row := transactionModelFromEntity(txn)
	result := r.conn(ctx).
		Model(&transactionModel{}).
		Where("transaction_id = ? AND status = ?", txn.TransactionID, string(expectedStatus)).
		Select("*").
		Omit("transaction_id", "created_at").
		Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetTransaction(ctx, txn.TransactionID); err != nil {
			return err
		}
		return domainerrors.ErrTransactionStatusRace
	}
	return nil
}

func (r *Repository) ListOpenTransactionsCreatedBefore(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]entities.Transaction, error) {
	var rows []transactionModel
	if err := r.conn(ctx).
		Where("status IN ? AND created_at < ?", openStatuses(), cutoff.UTC()).
		Order("created_at ASC").
		Limit(batchLimit(limit)).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return transactionsToEntities(rows), nil
}

func (r *Repository) ListCapturedAwaitingSettlement(ctx context.Context, limit int) ([]entities.Transaction, error) {
	var rows []transactionModel
	if err := r.conn(ctx).
		Joins("JOIN listings ON listings.listing_id = transactions.listing_id").
		Where("transactions.status = ? AND listings.status = ?",
			string(entities.TransactionStatusCaptured),
			string(entities.ListingStatusUnderTransaction),
		).
		Where("listings.transaction_id = '' OR listings.transaction_id = transactions.transaction_id").
		Order("transactions.created_at ASC").
		Limit(batchLimit(limit)).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return transactionsToEntities(rows), nil
}

func (r *Repository) CreateAssignment(ctx context.Context, assignment entities.LeadAssignment) error {
	row := assignmentModelFromEntity(assignment)
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == constraintActiveAssignment {
				return domainerrors.ErrActiveAssignmentExists
			}
			return domainerrors.ErrRepositoryInvariant
		}
		return err
	}
	return nil
}

func (r *Repository) GetAssignment(ctx context.Context, assignmentID string) (entities.LeadAssignment, error) {
	var row assignmentModel
	err := forUpdate(ctx, r.conn(ctx)).
		Where("assignment_id = ?", assignmentID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.LeadAssignment{}, domainerrors.ErrAssignmentNotFound
		}
		return entities.LeadAssignment{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetActiveAssignment(ctx context.Context, listingID string) (entities.LeadAssignment, bool, error) {
	var row assignmentModel
	err := forUpdate(ctx, r.conn(ctx)).
		Where("listing_id = ? AND status = ?", listingID, string(entities.AssignmentStatusActive)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.LeadAssignment{}, false, nil
		}
		return entities.LeadAssignment{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) UpdateAssignment(
	ctx context.Context,
	assignment entities.LeadAssignment,
	expectedStatus entities.AssignmentStatus,
) error {
	row := assignmentModelFromEntity(assignment)
	result := r.conn(ctx).
		Model(&assignmentModel{}).
		Where("assignment_id = ? AND status = ?", assignment.AssignmentID, string(expectedStatus)).
		Select("*").
		Omit("assignment_id", "listing_id", "broker_id", "assigned_at").
		Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetAssignment(ctx, assignment.AssignmentID); err != nil {
			return err
		}
		return domainerrors.ErrAssignmentStatusRace
	}
	return nil
}

func (r *Repository) CountActiveByBroker(ctx context.Context, brokerIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(brokerIDs))
	for _, brokerID := range brokerIDs {
		counts[brokerID] = 0
	}
	if len(brokerIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		BrokerID string
		Active   int
	}
	if err := r.conn(ctx).
		Model(&assignmentModel{}).
		Select("broker_id, COUNT(*) AS active").
		Where("status = ? AND broker_id IN ?", string(entities.AssignmentStatusActive), brokerIDs).
		Group("broker_id").
		Scan(&rows).
		Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.BrokerID] = row.Active
	}
	return counts, nil
}

func (r *Repository) ListStaleAssignments(
	ctx context.Context,
	assignedBefore time.Time,
	limit int,
) ([]entities.LeadAssignment, error) {
	var rows []assignmentModel
	if err := r.conn(ctx).
		Where("status = ? AND acknowledged_at IS NULL AND assigned_at <= ?",
			string(entities.AssignmentStatusActive),
			assignedBefore.UTC(),
		).
		Order("assigned_at ASC").
		Limit(batchLimit(limit)).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return assignmentsToEntities(rows), nil
}

func (r *Repository) ListAssignmentsByListing(ctx context.Context, listingID string) ([]entities.LeadAssignment, error) {
	var rows []assignmentModel
	if err := r.conn(ctx).
		Where("listing_id = ?", listingID).
		Order("assigned_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	return assignmentsToEntities(rows), nil
}

// AppendAudit inserts the entry and reads back the database-assigned
// sequence number.
func (r *Repository) AppendAudit(ctx context.Context, entry entities.AuditEntry) (entities.AuditEntry, error) {
	row := auditModelFromEntity(entry)
	if err := r.conn(ctx).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "sequence_number"}}}).
		Create(&row).
		Error; err != nil {
		if isUniqueViolation(err) {
			return entities.AuditEntry{}, domainerrors.ErrRepositoryInvariant
		}
		return entities.AuditEntry{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListAuditByEntity(
	ctx context.Context,
	entityType entities.AuditEntityType,
	entityID string,
) ([]entities.AuditEntry, error) {
	var rows []auditModel
	if err := r.conn(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Order("sequence_number ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) LatestAuditForEntity(
	ctx context.Context,
	entityType entities.AuditEntityType,
	entityID string,
) (entities.AuditEntry, bool, error) {
	var row auditModel
	err := r.conn(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Order("sequence_number DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AuditEntry{}, false, nil
		}
		return entities.AuditEntry{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) Quarantine(
	ctx context.Context,
	entityType entities.AuditEntityType,
	entityID string,
	reason string,
	at time.Time,
) error {
	row := quarantineModel{
		EntityType:    string(entityType),
		EntityID:      entityID,
		Reason:        reason,
		QuarantinedAt: at.UTC(),
	}
	return r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoNothing: true,
		}).
		Create(&row).
		Error
}

func (r *Repository) IsQuarantined(ctx context.Context, entityType entities.AuditEntityType, entityID string) (bool, error) {
	var count int64
	if err := r.conn(ctx).
		Model(&quarantineModel{}).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, event ports.OutboxEvent) error {
	payload, err := events.Encode(events.EnvelopeInput{
		EventID:          event.EventID,
		EventType:        event.EventType,
		SourceService:    sourceService,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     event.PartitionKey,
		OccurredAt:       event.OccurredAt,
		Data:             event.Data(),
	})
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariant
		}
		return err
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.conn(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.conn(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outbox.StatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariant
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.conn(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if !row.ExpiresAt.IsZero() && !now.UTC().Before(row.ExpiresAt.UTC()) {
		if err := r.conn(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}

	return row.toPort(), true, nil
}

// Put keeps the first record for a key.
func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModelFromPort(record)
	return r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row).
		Error
}

func batchLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func openStatuses() []string {
	return []string{
		string(entities.TransactionStatusPending),
		string(entities.TransactionStatusAuthorized),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
