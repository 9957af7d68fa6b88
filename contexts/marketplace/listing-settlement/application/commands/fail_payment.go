package commands

import (
	"context"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

// ReleaseFailedPayment returns a listing to active after the gateway failed
// its transaction, so another buyer can reserve it. It reports false when the
// listing has already moved on.
func (m ListingStateMachine) ReleaseFailedPayment(ctx context.Context, listingID string, transactionID string, reason string) (bool, error) {
	var (
		released entities.Listing
		applied  bool
	)
	err := m.inTx(ctx, listingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != entities.ListingStatusUnderTransaction || listing.TransactionID != transactionID {
			return nil
		}
		next, err := services.NextListingStatus(listing, services.ListingEventPaymentFailed)
		if err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.ReservedBy = ""
		after.TransactionID = ""
		if err := m.commit(ctx, listing, after, entities.ActionPaymentFailed, entities.SystemActor, reason); err != nil {
			return err
		}
		released = after
		applied = true
		return nil
	})
	if err != nil {
		m.logRejected(listingID, "settlement_payment_failed_release_rejected", err)
		return false, err
	}
	if applied {
		m.logTransition(released, "settlement_listing_payment_failed", "listing released after failed payment")
	}
	return applied, nil
}
