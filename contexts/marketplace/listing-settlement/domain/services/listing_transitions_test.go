package services

import (
	"errors"
	"testing"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

func TestNextListingStatusFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		from  entities.ListingStatus
		event ListingEvent
		want  entities.ListingStatus
	}{
		{entities.ListingStatusDraft, ListingEventPublish, entities.ListingStatusActive},
		{entities.ListingStatusActive, ListingEventReserve, entities.ListingStatusReserved},
		{entities.ListingStatusReserved, ListingEventStartTransaction, entities.ListingStatusUnderTransaction},
		{entities.ListingStatusReserved, ListingEventExpireReservation, entities.ListingStatusActive},
		{entities.ListingStatusUnderTransaction, ListingEventPaymentFailed, entities.ListingStatusActive},
		{entities.ListingStatusUnderTransaction, ListingEventCancel, entities.ListingStatusCancelled},
		{entities.ListingStatusCancelled, ListingEventArchive, entities.ListingStatusArchived},
		{entities.ListingStatusSold, ListingEventArchive, entities.ListingStatusArchived},
		{entities.ListingStatusLeased, ListingEventArchive, entities.ListingStatusArchived},
	}
	for _, tc := range cases {
		listing := entities.Listing{Kind: entities.ListingKindProperty, Status: tc.from}
		got, err := NextListingStatus(listing, tc.event)
		if err != nil {
			t.Fatalf("%s from %s: unexpected error %v", tc.event, tc.from, err)
		}
		if got != tc.want {
			t.Fatalf("%s from %s: expected %s, got %s", tc.event, tc.from, tc.want, got)
		}
	}
}

func TestNextListingStatusRejectsUnlistedTransitions(t *testing.T) {
	cases := []struct {
		from  entities.ListingStatus
		event ListingEvent
	}{
		{entities.ListingStatusDraft, ListingEventReserve},
		{entities.ListingStatusActive, ListingEventStartTransaction},
		{entities.ListingStatusSold, ListingEventCancel},
		{entities.ListingStatusLeased, ListingEventReserve},
		{entities.ListingStatusDraft, ListingEventArchive},
		{entities.ListingStatusActive, ListingEventArchive},
		{entities.ListingStatusReserved, ListingEventArchive},
		{entities.ListingStatusUnderTransaction, ListingEventArchive},
		{entities.ListingStatusArchived, ListingEventArchive},
		{entities.ListingStatusArchived, ListingEventPublish},
		{entities.ListingStatusCancelled, ListingEventPublish},
	}
	for _, tc := range cases {
		_, err := NextListingStatus(entities.Listing{Status: tc.from}, tc.event)
		if !errors.Is(err, domainerrors.ErrInvalidTransition) {
			t.Fatalf("%s from %s: expected invalid transition, got %v", tc.event, tc.from, err)
		}
		if CanApplyListingEvent(tc.from, tc.event) {
			t.Fatalf("%s from %s: CanApplyListingEvent disagrees with NextListingStatus", tc.event, tc.from)
		}
	}
}

func TestNextListingStatusResolvesSettlementByOffer(t *testing.T) {
	property := entities.Listing{Kind: entities.ListingKindProperty, Status: entities.ListingStatusUnderTransaction}
	if got, _ := NextListingStatus(property, ListingEventComplete); got != entities.ListingStatusSold {
		t.Fatalf("expected property to settle as sold, got %s", got)
	}

	vehicle := entities.Listing{Kind: entities.ListingKindVehicle, Status: entities.ListingStatusUnderTransaction}
	if got, _ := NextListingStatus(vehicle, ListingEventComplete); got != entities.ListingStatusLeased {
		t.Fatalf("expected vehicle to settle as leased, got %s", got)
	}

	vehicleSale := vehicle
	vehicleSale.OfferType = entities.OfferTypeSale
	if got, _ := NextListingStatus(vehicleSale, ListingEventComplete); got != entities.ListingStatusSold {
		t.Fatalf("expected vehicle offered for sale to settle as sold, got %s", got)
	}
}
