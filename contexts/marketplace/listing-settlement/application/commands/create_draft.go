package commands

import (
	"context"
	"strings"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"

	"github.com/shopspring/decimal"
)

type CreateDraftCommand struct {
	ListingID string
	Kind      entities.ListingKind
	OfferType entities.OfferType
	Title     string
	Region    string
	OwnerID   string
	Price     decimal.Decimal
	Currency  string
	ActorID   string
}

// CreateDraft stores a version-0 draft together with its creation audit
// entry. Completeness is checked at publish time.
func (m ListingStateMachine) CreateDraft(ctx context.Context, cmd CreateDraftCommand) (entities.Listing, error) {
	listingID := strings.TrimSpace(cmd.ListingID)
	if listingID == "" {
		generated, err := m.IDGenerator.NewID(ctx)
		if err != nil {
			return entities.Listing{}, err
		}
		listingID = generated
	}
	listing, err := entities.NewDraftListing(
		listingID,
		cmd.Kind,
		cmd.OfferType,
		cmd.Title,
		cmd.Region,
		cmd.OwnerID,
		cmd.Price,
		cmd.Currency,
		m.now(),
	)
	if err != nil {
		return entities.Listing{}, err
	}

	err = m.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.Listings.CreateListing(ctx, listing); err != nil {
			return err
		}
		_, err := m.Audit.Append(ctx, application.AuditRecord{
			EntityType: entities.AuditEntityListing,
			EntityID:   listing.ListingID,
			Action:     entities.ActionListingCreated,
			ActorID:    firstNonEmpty(cmd.ActorID, listing.OwnerID),
			After:      application.SnapshotListing(listing),
		})
		return err
	})
	if err != nil {
		m.logRejected(listingID, "settlement_listing_create_failed", err)
		return entities.Listing{}, err
	}
	m.logTransition(listing, "settlement_listing_created", "listing draft created")
	return listing, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
