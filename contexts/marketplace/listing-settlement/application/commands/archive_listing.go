package commands

import (
	"context"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

type ArchiveListingCommand struct {
	ListingID string
	ActorID   string
}

// Archive hides a listing without deleting it.
func (m ListingStateMachine) Archive(ctx context.Context, cmd ArchiveListingCommand) (entities.Listing, error) {
	var archived entities.Listing
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		next, err := services.NextListingStatus(listing, services.ListingEventArchive)
		if err != nil {
			return err
		}
		if _, err := m.Coordinator.ReleaseActive(ctx, listing.ListingID, cmd.ActorID, "listing archived"); err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.ReservationExpiresAt = nil
		if err := m.commit(ctx, listing, after, entities.ActionListingArchived, cmd.ActorID, ""); err != nil {
			return err
		}
		archived = after
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_listing_archive_rejected", err)
		return entities.Listing{}, err
	}
	m.logTransition(archived, "settlement_listing_archived", "listing archived")
	return archived, nil
}
