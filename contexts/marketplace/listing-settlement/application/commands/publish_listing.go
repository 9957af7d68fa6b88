package commands

import (
	"context"
	"errors"
	"fmt"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

type PublishListingCommand struct {
	ListingID string
	ActorID   string
}

type PublishListingResult struct {
	Listing    entities.Listing
	Assignment *entities.LeadAssignment
	// Unassigned is set when no broker was eligible; the listing is still
	// published and can be assigned later.
	Unassigned bool
}

type publishRequirements struct {
	Kind      string `validate:"required,oneof=property vehicle"`
	OfferType string `validate:"required,oneof=sale rent"`
	OwnerID   string `validate:"required"`
	Currency  string `validate:"required,len=3,alpha"`
}

// Publish moves a draft to active and asks the coordinator for a broker in
// the same commit.
func (m ListingStateMachine) Publish(ctx context.Context, cmd PublishListingCommand) (PublishListingResult, error) {
	var result PublishListingResult
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		next, err := services.NextListingStatus(listing, services.ListingEventPublish)
		if err != nil {
			return err
		}
		if err := m.validateForPublish(listing); err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		assignment, err := m.Coordinator.Assign(ctx, after, cmd.ActorID)
		switch {
		case err == nil:
			after.BrokerID = assignment.BrokerID
			result.Assignment = &assignment
		case errors.Is(err, domainerrors.ErrNoEligibleBroker):
			result.Unassigned = true
		default:
			return err
		}

		if err := m.commit(ctx, listing, after, entities.ActionListingPublished, cmd.ActorID, ""); err != nil {
			return err
		}
		result.Listing = after
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_listing_publish_rejected", err)
		return PublishListingResult{}, err
	}
	if result.Unassigned {
		application.ResolveLogger(m.Logger).Warn("listing published without broker",
			"event", "settlement_listing_published_unassigned",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"listing_id", result.Listing.ListingID,
		)
	}
	m.logTransition(result.Listing, "settlement_listing_published", "listing published")
	return result, nil
}

func (m ListingStateMachine) validateForPublish(listing entities.Listing) error {
	if err := m.validate().Struct(publishRequirements{
		Kind:      string(listing.Kind),
		OfferType: string(listing.OfferType),
		OwnerID:   listing.OwnerID,
		Currency:  listing.Currency,
	}); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidListing, err)
	}
	if !listing.Price.IsPositive() {
		return domainerrors.ErrInvalidListing
	}
	return nil
}
