package commands

import (
	"context"
	"errors"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

// VerifyListing checks that the stored listing is the after-image of its
// latest audit entry. A mismatch quarantines the listing and alerts an
// operator; nothing is repaired automatically.
func (m ListingStateMachine) VerifyListing(ctx context.Context, listingID string) error {
	listing, err := m.Listings.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	err = m.Audit.CheckListing(ctx, listing)
	if errors.Is(err, domainerrors.ErrMissingAuditEntry) {
		m.Audit.QuarantineEntity(ctx, entities.AuditEntityListing, listingID, err)
	}
	return err
}
