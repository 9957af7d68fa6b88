package commands

import (
	"context"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

// ReservationExpiryReason is recorded on the audit entry of a swept reservation.
const ReservationExpiryReason = "TTL expiry"

// ExpireReservation reverts a lapsed reservation to active. It reports false
// when the listing is no longer reserved or the reservation still holds.
func (m ListingStateMachine) ExpireReservation(ctx context.Context, listingID string) (entities.Listing, bool, error) {
	var (
		expired entities.Listing
		applied bool
	)
	err := m.inTx(ctx, listingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, listingID)
		if err != nil {
			return err
		}
		now := m.now()
		if listing.Status != entities.ListingStatusReserved ||
			listing.ReservationExpiresAt == nil ||
			listing.ReservationActive(now) {
			expired = listing
			return nil
		}
		next, err := services.NextListingStatus(listing, services.ListingEventExpireReservation)
		if err != nil {
			return err
		}

		after := listing.Next(next, now)
		after.ReservedBy = ""
		after.ReservationExpiresAt = nil
		if err := m.commit(ctx, listing, after, entities.ActionReservationTTL, entities.SystemActor, ReservationExpiryReason); err != nil {
			return err
		}
		expired = after
		applied = true
		return nil
	})
	if err != nil {
		m.logRejected(listingID, "settlement_reservation_expiry_rejected", err)
		return entities.Listing{}, false, err
	}
	if applied {
		m.logTransition(expired, "settlement_reservation_expired", "reservation expired")
	}
	return expired, applied, nil
}
