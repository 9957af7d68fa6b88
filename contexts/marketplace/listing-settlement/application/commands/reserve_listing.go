package commands

import (
	"context"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

type ReserveListingCommand struct {
	ListingID       string
	BuyerID         string
	ExpectedVersion int64
}

// Reserve holds an active listing for one buyer until the reservation TTL
// elapses. The caller's expected version must match the stored one.
func (m ListingStateMachine) Reserve(ctx context.Context, cmd ReserveListingCommand) (entities.Listing, error) {
	if strings.TrimSpace(cmd.BuyerID) == "" {
		return entities.Listing{}, domainerrors.ErrBuyerRequired
	}
	if m.ReservationTTL <= 0 {
		return entities.Listing{}, domainerrors.ErrReservationTTLUnset
	}

	var reserved entities.Listing
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		if listing.Version != cmd.ExpectedVersion {
			return domainerrors.ErrVersionConflict
		}
		next, err := services.NextListingStatus(listing, services.ListingEventReserve)
		if err != nil {
			return err
		}

		now := m.now()
		expiresAt := now.Add(m.ReservationTTL)
		after := listing.Next(next, now)
		after.ReservedBy = cmd.BuyerID
		after.ReservationExpiresAt = &expiresAt
		if err := m.commit(ctx, listing, after, entities.ActionListingReserved, cmd.BuyerID, ""); err != nil {
			return err
		}
		reserved = after
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_listing_reserve_rejected", err)
		return entities.Listing{}, err
	}
	m.logTransition(reserved, "settlement_listing_reserved", "listing reserved")
	return reserved, nil
}
