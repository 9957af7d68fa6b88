package commands

import (
	"context"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

type CancelListingCommand struct {
	ListingID string
	Reason    string
	ActorID   string
}

// Cancel ends a non-terminal listing. The open transaction, if any, is failed
// through the ledger and the active assignment is released in the same
// commit. A captured transaction blocks cancellation; it needs a refund.
func (m ListingStateMachine) Cancel(ctx context.Context, cmd CancelListingCommand) (entities.Listing, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return entities.Listing{}, domainerrors.ErrReasonRequired
	}

	var cancelled entities.Listing
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		next, err := services.NextListingStatus(listing, services.ListingEventCancel)
		if err != nil {
			return err
		}

		if err := m.cancelTransactions(ctx, listing, cmd.ActorID, reason); err != nil {
			return err
		}
		if _, err := m.Coordinator.ReleaseActive(ctx, listing.ListingID, cmd.ActorID, "listing cancelled: "+reason); err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.CancelReason = reason
		after.ReservationExpiresAt = nil
		if err := m.commit(ctx, listing, after, entities.ActionListingCancelled, cmd.ActorID, reason); err != nil {
			return err
		}
		cancelled = after
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_listing_cancel_rejected", err)
		return entities.Listing{}, err
	}
	m.logTransition(cancelled, "settlement_listing_cancelled", "listing cancelled")
	return cancelled, nil
}

func (m ListingStateMachine) cancelTransactions(ctx context.Context, listing entities.Listing, actorID string, reason string) error {
	if listing.TransactionID != "" {
		txn, err := m.Transactions.GetTransaction(ctx, listing.TransactionID)
		if err != nil {
			return err
		}
		if _, err := m.Ledger.Cancel(ctx, txn, actorID, reason); err != nil {
			return err
		}
	}
	open, found, err := m.Transactions.GetOpenTransactionForListing(ctx, listing.ListingID)
	if err != nil || !found {
		return err
	}
	_, err = m.Ledger.Cancel(ctx, open, actorID, reason)
	return err
}
