package queries

import (
	"context"
	"log/slog"
	"strings"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

type ListingView struct {
	Listing          entities.Listing
	ActiveAssignment *entities.LeadAssignment
	OpenTransaction  *entities.Transaction
}

type GetListingUseCase struct {
	Listings     ports.ListingRepository
	Transactions ports.TransactionRepository
	Assignments  ports.AssignmentRepository
	Logger       *slog.Logger
}

func (u GetListingUseCase) Execute(ctx context.Context, listingID string) (ListingView, error) {
	if strings.TrimSpace(listingID) == "" {
		return ListingView{}, domainerrors.ErrListingNotFound
	}
	listing, err := u.Listings.GetListing(ctx, listingID)
	if err != nil {
		application.ResolveLogger(u.Logger).Debug("listing lookup failed",
			"event", "settlement_get_listing_failed",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"listing_id", listingID,
			"error", err.Error(),
		)
		return ListingView{}, err
	}

	view := ListingView{Listing: listing}
	if assignment, found, err := u.Assignments.GetActiveAssignment(ctx, listingID); err != nil {
		return ListingView{}, err
	} else if found {
		view.ActiveAssignment = &assignment
	}
	if txn, found, err := u.Transactions.GetOpenTransactionForListing(ctx, listingID); err != nil {
		return ListingView{}, err
	} else if found {
		view.OpenTransaction = &txn
	}
	return view, nil
}
