package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
	"key2key/internal/shared/events"
	"key2key/internal/shared/outbox"
)

const (
	sourceService    = "listing-settlement-service"
	partitionKeyPath = "listing_id"
)

type txKey struct{}

// state is everything a storage transaction may change. WithTx snapshots it
// and restores the snapshot when fn fails.
type state struct {
	listings     map[string]entities.Listing
	transactions map[string]entities.Transaction
	assignments  map[string]entities.LeadAssignment
	audit        []entities.AuditEntry
	auditSeq     int64
	outbox       map[string]ports.OutboxMessage
	outboxOrder  []string
}

func (s state) clone() state {
	cloned := state{
		listings:     make(map[string]entities.Listing, len(s.listings)),
		transactions: make(map[string]entities.Transaction, len(s.transactions)),
		assignments:  make(map[string]entities.LeadAssignment, len(s.assignments)),
		audit:        append([]entities.AuditEntry(nil), s.audit...),
		auditSeq:     s.auditSeq,
		outbox:       make(map[string]ports.OutboxMessage, len(s.outbox)),
		outboxOrder:  append([]string(nil), s.outboxOrder...),
	}
	for id, listing := range s.listings {
		cloned.listings[id] = listing
	}
	for id, txn := range s.transactions {
		cloned.transactions[id] = txn
	}
	for id, assignment := range s.assignments {
		cloned.assignments[id] = assignment
	}
	for id, msg := range s.outbox {
		cloned.outbox[id] = msg
	}
	return cloned
}

// Store is an in-memory adapter implementing the settlement ports for local
// runtime and tests. Transactions are serialized, which gives the same
// outcome as row locks plus compare-and-swap in Postgres.
// It is not intended as production persistence.
type Store struct {
	txMu        sync.Mutex
	mu          sync.RWMutex
	data        state
	outboxSent  map[string]time.Time
	idempotency map[string]ports.IdempotencyRecord
	quarantined map[string]string
	locks       map[string]time.Time
	sequence    uint64
	clockMu     sync.RWMutex
	frozenAt    *time.Time
	logger      *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		data: state{
			listings:     make(map[string]entities.Listing),
			transactions: make(map[string]entities.Transaction),
			assignments:  make(map[string]entities.LeadAssignment),
			outbox:       make(map[string]ports.OutboxMessage),
		},
		outboxSent:  make(map[string]time.Time),
		idempotency: make(map[string]ports.IdempotencyRecord),
		quarantined: make(map[string]string),
		locks:       make(map[string]time.Time),
		logger:      application.ResolveLogger(logger),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		s.logger.Debug("memory transaction rolled back",
			"event", "memory_tx_rollback",
			"module", "marketplace/listing-settlement",
			"layer", "adapter",
			"error", err.Error(),
		)
		return err
	}
	return nil
}

func (s *Store) CreateListing(_ context.Context, listing entities.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.listings[listing.ListingID]; exists {
		return fmt.Errorf("%w: listing %s already exists", domainerrors.ErrRepositoryInvariant, listing.ListingID)
	}
	s.data.listings[listing.ListingID] = listing
	return nil
}

func (s *Store) GetListing(_ context.Context, listingID string) (entities.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.data.listings[listingID]
	if !ok {
		return entities.Listing{}, domainerrors.ErrListingNotFound
	}
	return listing, nil
}

func (s *Store) UpdateListing(_ context.Context, listing entities.Listing, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data.listings[listing.ListingID]
	if !ok {
		return domainerrors.ErrListingNotFound
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrVersionConflict
	}
	s.data.listings[listing.ListingID] = listing
	return nil
}

func (s *Store) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]entities.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := make([]entities.Listing, 0)
	for _, listing := range s.data.listings {
		if listing.Status != entities.ListingStatusReserved || listing.ReservationExpiresAt == nil {
			continue
		}
		if now.UTC().Before(listing.ReservationExpiresAt.UTC()) {
			continue
		}
		expired = append(expired, listing)
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ReservationExpiresAt.Before(*expired[j].ReservationExpiresAt)
	})
	return truncate(expired, limit), nil
}

func (s *Store) CreateTransaction(_ context.Context, txn entities.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.transactions[txn.TransactionID]; exists {
		return fmt.Errorf("%w: transaction %s already exists", domainerrors.ErrRepositoryInvariant, txn.TransactionID)
	}
	for _, existing := range s.data.transactions {
		if existing.IdempotencyKey == txn.IdempotencyKey {
			return domainerrors.ErrIdempotencyKeyConflict
		}
		if txn.Status.IsOpen() && existing.ListingID == txn.ListingID && existing.Status.IsOpen() {
			return domainerrors.ErrOpenTransactionExists
		}
	}
	s.data.transactions[txn.TransactionID] = txn
	return nil
}

func (s *Store) GetTransaction(_ context.Context, transactionID string) (entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.data.transactions[transactionID]
	if !ok {
		return entities.Transaction{}, domainerrors.ErrTransactionNotFound
	}
	return txn, nil
}

func (s *Store) GetTransactionByIdempotencyKey(_ context.Context, key string) (entities.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, txn := range s.data.transactions {
		if txn.IdempotencyKey == key {
			return txn, true, nil
		}
	}
	return entities.Transaction{}, false, nil
}

func (s *Store) GetOpenTransactionForListing(_ context.Context, listingID string) (entities.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, txn := range s.data.transactions {
		if txn.ListingID == listingID && txn.Status.IsOpen() {
			return txn, true, nil
		}
	}
	return entities.Transaction{}, false, nil
}

func (s *Store) UpdateTransaction(
	_ context.Context,
	txn entities.Transaction,
	expectedStatus entities.TransactionStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data.transactions[txn.TransactionID]
	if !ok {
		return domainerrors.ErrTransactionNotFound
	}
	if current.Status != expectedStatus {
		return domainerrors.ErrTransactionStatusRace
	}
	s.data.transactions[txn.TransactionID] = txn
	return nil
}

func (s *Store) ListOpenTransactionsCreatedBefore(
	_ context.Context,
	cutoff time.Time,
	limit int,
) ([]entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := make([]entities.Transaction, 0)
	for _, txn := range s.data.transactions {
		if txn.Status.IsOpen() && txn.CreatedAt.Before(cutoff.UTC()) {
			stale = append(stale, txn)
		}
	}
	sortTransactions(stale)
	return truncate(stale, limit), nil
}

func (s *Store) ListCapturedAwaitingSettlement(_ context.Context, limit int) ([]entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	waiting := make([]entities.Transaction, 0)
	for _, txn := range s.data.transactions {
		if txn.Status != entities.TransactionStatusCaptured {
			continue
		}
		listing, ok := s.data.listings[txn.ListingID]
		if !ok || listing.Status != entities.ListingStatusUnderTransaction {
			continue
		}
		if listing.TransactionID != "" && listing.TransactionID != txn.TransactionID {
			continue
		}
		waiting = append(waiting, txn)
	}
	sortTransactions(waiting)
	return truncate(waiting, limit), nil
}

func (s *Store) CreateAssignment(_ context.Context, assignment entities.LeadAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.assignments[assignment.AssignmentID]; exists {
		return fmt.Errorf("%w: assignment %s already exists", domainerrors.ErrRepositoryInvariant, assignment.AssignmentID)
	}
	if assignment.Status == entities.AssignmentStatusActive {
		for _, existing := range s.data.assignments {
			if existing.ListingID == assignment.ListingID && existing.Status == entities.AssignmentStatusActive {
				return domainerrors.ErrActiveAssignmentExists
			}
		}
	}
	s.data.assignments[assignment.AssignmentID] = assignment
	return nil
}

func (s *Store) GetAssignment(_ context.Context, assignmentID string) (entities.LeadAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.data.assignments[assignmentID]
	if !ok {
		return entities.LeadAssignment{}, domainerrors.ErrAssignmentNotFound
	}
	return assignment, nil
}

func (s *Store) GetActiveAssignment(_ context.Context, listingID string) (entities.LeadAssignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, assignment := range s.data.assignments {
		if assignment.ListingID == listingID && assignment.Status == entities.AssignmentStatusActive {
			return assignment, true, nil
		}
	}
	return entities.LeadAssignment{}, false, nil
}

func (s *Store) UpdateAssignment(
	_ context.Context,
	assignment entities.LeadAssignment,
	expectedStatus entities.AssignmentStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data.assignments[assignment.AssignmentID]
	if !ok {
		return domainerrors.ErrAssignmentNotFound
	}
	if current.Status != expectedStatus {
		return domainerrors.ErrAssignmentStatusRace
	}
	s.data.assignments[assignment.AssignmentID] = assignment
	return nil
}

func (s *Store) CountActiveByBroker(_ context.Context, brokerIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(brokerIDs))
	for _, brokerID := range brokerIDs {
		counts[brokerID] = 0
	}
	for _, assignment := range s.data.assignments {
		if assignment.Status != entities.AssignmentStatusActive {
			continue
		}
		if _, tracked := counts[assignment.BrokerID]; tracked {
			counts[assignment.BrokerID]++
		}
	}
	return counts, nil
}

func (s *Store) ListStaleAssignments(
	_ context.Context,
	assignedBefore time.Time,
	limit int,
) ([]entities.LeadAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := make([]entities.LeadAssignment, 0)
	for _, assignment := range s.data.assignments {
		if assignment.Status != entities.AssignmentStatusActive || assignment.AcknowledgedAt != nil {
			continue
		}
		if assignment.AssignedAt.After(assignedBefore.UTC()) {
			continue
		}
		stale = append(stale, assignment)
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].AssignedAt.Before(stale[j].AssignedAt)
	})
	return truncate(stale, limit), nil
}

func (s *Store) ListAssignmentsByListing(_ context.Context, listingID string) ([]entities.LeadAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.LeadAssignment, 0)
	for _, assignment := range s.data.assignments {
		if assignment.ListingID == listingID {
			items = append(items, assignment)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].AssignedAt.Before(items[j].AssignedAt)
	})
	return items, nil
}

func (s *Store) AppendAudit(_ context.Context, entry entities.AuditEntry) (entities.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.auditSeq++
	entry.Sequence = s.data.auditSeq
	entry.OccurredAt = entry.OccurredAt.UTC()
	s.data.audit = append(s.data.audit, entry)
	return entry, nil
}

func (s *Store) ListAuditByEntity(
	_ context.Context,
	entityType entities.AuditEntityType,
	entityID string,
) ([]entities.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entities.AuditEntry, 0)
	for _, entry := range s.data.audit {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Store) LatestAuditForEntity(
	_ context.Context,
	entityType entities.AuditEntityType,
	entityID string,
) (entities.AuditEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.data.audit) - 1; i >= 0; i-- {
		entry := s.data.audit[i]
		if entry.EntityType == entityType && entry.EntityID == entityID {
			return entry, true, nil
		}
	}
	return entities.AuditEntry{}, false, nil
}

func (s *Store) Quarantine(
	_ context.Context,
	entityType entities.AuditEntityType,
	entityID string,
	reason string,
	_ time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quarantined[string(entityType)+"|"+entityID] = reason
	return nil
}

func (s *Store) IsQuarantined(_ context.Context, entityType entities.AuditEntityType, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.quarantined[string(entityType)+"|"+entityID]
	return ok, nil
}

func (s *Store) AppendOutbox(_ context.Context, event ports.OutboxEvent) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.outbox[event.EventID]; exists {
		return fmt.Errorf("%w: outbox event %s already staged", domainerrors.ErrRepositoryInvariant, event.EventID)
	}
	s.data.outbox[event.EventID] = ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	s.data.outboxOrder = append(s.data.outboxOrder, event.EventID)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.data.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.data.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariant
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	// Expired keys are lazily evicted on read.
	if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[record.Key]; ok {
		if existing.ExpiresAt.IsZero() || s.now().Before(existing.ExpiresAt) {
			return nil
		}
	}
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) TryLock(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiresAt, held := s.locks[name]; held && now.Before(expiresAt) {
		return nil, false, nil
	}
	token := now.Add(ttl)
	s.locks[name] = token
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.locks[name]; ok && current.Equal(token) {
			delete(s.locks, name)
		}
	}
	return release, true, nil
}

// Now returns the frozen time when one is set, otherwise wall-clock UTC.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) now() time.Time {
	s.clockMu.RLock()
	defer s.clockMu.RUnlock()
	if s.frozenAt != nil {
		return *s.frozenAt
	}
	return time.Now().UTC()
}

// SetNow freezes the store clock.
func (s *Store) SetNow(now time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	frozen := now.UTC()
	s.frozenAt = &frozen
}

// Advance moves a frozen clock forward.
func (s *Store) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	base := time.Now().UTC()
	if s.frozenAt != nil {
		base = *s.frozenAt
	}
	next := base.Add(d)
	s.frozenAt = &next
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("k2k-%d", value), nil
}

func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.OutboxMessage, 0, len(s.data.outboxOrder))
	for _, id := range s.data.outboxOrder {
		if msg, ok := s.data.outbox[id]; ok {
			items = append(items, msg)
		}
	}
	return items
}

// OutboxStatus reports whether the relay already published the row.
func (s *Store) OutboxStatus(outboxID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, sent := s.outboxSent[outboxID]; sent {
		return outbox.StatusSent
	}
	return outbox.StatusPending
}

func (s *Store) AuditEntries() []entities.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.AuditEntry(nil), s.data.audit...)
}

func sortTransactions(items []entities.Transaction) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].TransactionID < items[j].TransactionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
