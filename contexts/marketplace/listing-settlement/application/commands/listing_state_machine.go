package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/go-playground/validator/v10"
)

const listingEventChanged = "settlement.listing.status_changed"

var defaultValidator = validator.New()

// ListingStateMachine is the only writer of Listing.status. Every transition
// commits the listing (version+1, compare-and-swap on the loaded version),
// exactly one listing audit entry and one outbox notification in a single
// storage transaction.
type ListingStateMachine struct {
	Tx             ports.TxRunner
	Listings       ports.ListingRepository
	Transactions   ports.TransactionRepository
	Ledger         application.Ledger
	Coordinator    application.Coordinator
	Audit          application.AuditWriter
	Outbox         ports.OutboxWriter
	IDGenerator    ports.IDGenerator
	Clock          ports.Clock
	Validate       *validator.Validate
	ReservationTTL time.Duration
	Logger         *slog.Logger
}

// inTx runs fn in one storage transaction. A listing whose history fails
// verification is quarantined after the rollback.
func (m ListingStateMachine) inTx(ctx context.Context, listingID string, fn func(ctx context.Context) error) error {
	err := m.Tx.WithTx(ctx, fn)
	if errors.Is(err, domainerrors.ErrMissingAuditEntry) {
		m.Audit.QuarantineEntity(ctx, entities.AuditEntityListing, listingID, err)
	}
	return err
}

// load reads the listing and refuses to continue when its stored state has
// no matching audit entry.
func (m ListingStateMachine) load(ctx context.Context, listingID string) (entities.Listing, error) {
	listing, err := m.Listings.GetListing(ctx, listingID)
	if err != nil {
		return entities.Listing{}, err
	}
	if err := m.Audit.CheckListing(ctx, listing); err != nil {
		return entities.Listing{}, err
	}
	return listing, nil
}

func (m ListingStateMachine) commit(
	ctx context.Context,
	before entities.Listing,
	after entities.Listing,
	action string,
	actorID string,
	reason string,
) error {
	if err := m.Listings.UpdateListing(ctx, after, before.Version); err != nil {
		return err
	}
	if _, err := m.Audit.Append(ctx, application.AuditRecord{
		EntityType: entities.AuditEntityListing,
		EntityID:   after.ListingID,
		Action:     action,
		ActorID:    actorID,
		Reason:     reason,
		Before:     application.SnapshotListing(before),
		After:      application.SnapshotListing(after),
	}); err != nil {
		return err
	}
	actor := actorID
	if actor == "" {
		actor = entities.SystemActor
	}
	return application.EmitOutbox(ctx, m.Outbox, m.IDGenerator, ports.OutboxEvent{
		EventType:  listingEventChanged,
		EntityType: entities.AuditEntityListing,
		EntityID:   after.ListingID,
		ListingID:  after.ListingID,
		ActorID:    actor,
		Status:     string(after.Status),
		Reason:     reason,
		OccurredAt: after.UpdatedAt,
	})
}

func (m ListingStateMachine) now() time.Time {
	return application.Now(m.Clock)
}

func (m ListingStateMachine) validate() *validator.Validate {
	if m.Validate == nil {
		return defaultValidator
	}
	return m.Validate
}

func (m ListingStateMachine) logTransition(listing entities.Listing, event string, message string) {
	application.ResolveLogger(m.Logger).Info(message,
		"event", event,
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"listing_id", listing.ListingID,
		"status", listing.Status,
		"version", listing.Version,
	)
}

func (m ListingStateMachine) logRejected(listingID string, event string, err error) {
	logger := application.ResolveLogger(m.Logger)
	level := slog.LevelWarn
	if errors.Is(err, domainerrors.ErrFatalConsistency) {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "listing transition rejected",
		"event", event,
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"listing_id", listingID,
		"error", err.Error(),
	)
}
