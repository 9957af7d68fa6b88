package services

import (
	"fmt"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

type ListingEvent string

const (
	ListingEventPublish           ListingEvent = "publish"
	ListingEventReserve           ListingEvent = "reserve"
	ListingEventStartTransaction  ListingEvent = "start_transaction"
	ListingEventComplete          ListingEvent = "complete_transaction"
	ListingEventCancel            ListingEvent = "cancel"
	ListingEventArchive           ListingEvent = "archive"
	ListingEventExpireReservation ListingEvent = "expire_reservation"
	ListingEventReassignBroker    ListingEvent = "reassign_broker"
	ListingEventPaymentFailed     ListingEvent = "payment_failed"
)

// listingSettled is resolved per listing to sold or leased.
const listingSettled entities.ListingStatus = "settled"

// Only terminal listings archive. Cancel is the way out of a live state.
var listingTransitions = map[entities.ListingStatus]map[ListingEvent]entities.ListingStatus{
	entities.ListingStatusDraft: {
		ListingEventPublish: entities.ListingStatusActive,
		ListingEventCancel:  entities.ListingStatusCancelled,
	},
	entities.ListingStatusActive: {
		ListingEventReserve:        entities.ListingStatusReserved,
		ListingEventCancel:         entities.ListingStatusCancelled,
		ListingEventReassignBroker: entities.ListingStatusActive,
	},
	entities.ListingStatusReserved: {
		ListingEventStartTransaction:  entities.ListingStatusUnderTransaction,
		ListingEventExpireReservation: entities.ListingStatusActive,
		ListingEventCancel:            entities.ListingStatusCancelled,
		ListingEventReassignBroker:    entities.ListingStatusReserved,
	},
	entities.ListingStatusUnderTransaction: {
		ListingEventComplete:       listingSettled,
		ListingEventPaymentFailed:  entities.ListingStatusActive,
		ListingEventCancel:         entities.ListingStatusCancelled,
		ListingEventReassignBroker: entities.ListingStatusUnderTransaction,
	},
	entities.ListingStatusSold: {
		ListingEventArchive: entities.ListingStatusArchived,
	},
	entities.ListingStatusLeased: {
		ListingEventArchive: entities.ListingStatusArchived,
	},
	entities.ListingStatusCancelled: {
		ListingEventArchive: entities.ListingStatusArchived,
	},
}

// NextListingStatus looks the event up in the transition table. Anything not
// in the table is rejected, never coerced.
func NextListingStatus(listing entities.Listing, event ListingEvent) (entities.ListingStatus, error) {
	next, ok := listingTransitions[listing.Status][event]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", domainerrors.ErrListingTransition, event, listing.Status)
	}
	if next == listingSettled {
		return listing.SettledStatus(), nil
	}
	return next, nil
}

// CanApplyListingEvent is the side-effect-free form of NextListingStatus.
func CanApplyListingEvent(status entities.ListingStatus, event ListingEvent) bool {
	_, ok := listingTransitions[status][event]
	return ok
}
