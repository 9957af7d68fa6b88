package commands

import (
	"context"
	"fmt"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

type CompleteTransactionCommand struct {
	ListingID     string
	TransactionID string
}

type CompleteTransactionResult struct {
	Listing        entities.Listing
	AlreadySettled bool
}

// CompleteTransaction settles the listing off a captured ledger entry. Only
// the webhook worker and the settlement completer call it; repeating it for
// the same transaction is a no-op.
func (m ListingStateMachine) CompleteTransaction(ctx context.Context, cmd CompleteTransactionCommand) (CompleteTransactionResult, error) {
	var result CompleteTransactionResult
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		if (listing.Status == entities.ListingStatusSold || listing.Status == entities.ListingStatusLeased) &&
			listing.TransactionID == cmd.TransactionID {
			result = CompleteTransactionResult{Listing: listing, AlreadySettled: true}
			return nil
		}

		txn, err := m.Transactions.GetTransaction(ctx, cmd.TransactionID)
		if err != nil {
			return err
		}
		if txn.ListingID != listing.ListingID ||
			(listing.TransactionID != "" && listing.TransactionID != txn.TransactionID) {
			return domainerrors.ErrTransactionListingMatch
		}
		if txn.Status != entities.TransactionStatusCaptured {
			return fmt.Errorf("%w: settlement requires a captured transaction, got %s",
				domainerrors.ErrTransactionTransition, txn.Status)
		}
		next, err := services.NextListingStatus(listing, services.ListingEventComplete)
		if err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.TransactionID = txn.TransactionID
		if err := m.Coordinator.Complete(ctx, listing.ListingID); err != nil {
			return err
		}
		if err := m.commit(ctx, listing, after, entities.ActionListingSettled, entities.SystemActor, "payment captured"); err != nil {
			return err
		}
		result = CompleteTransactionResult{Listing: after}
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_listing_complete_rejected", err)
		return CompleteTransactionResult{}, err
	}
	if !result.AlreadySettled {
		m.logTransition(result.Listing, "settlement_listing_settled", "listing settled")
	}
	return result, nil
}
