package entities

import (
	"errors"
	"testing"
	"time"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"

	"github.com/shopspring/decimal"
)

func TestNewDraftListingNormalizesFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("EAT", 3*3600))
	listing, err := NewDraftListing("lst-1", ListingKindVehicle, "", " Corolla ", " Addis Ababa ", " owner-1 ", decimal.RequireFromString("1200.50"), "etb", now)
	if err != nil {
		t.Fatalf("new draft failed: %v", err)
	}
	if listing.Status != ListingStatusDraft || listing.Version != 0 {
		t.Fatalf("expected version-0 draft, got %s v%d", listing.Status, listing.Version)
	}
	if listing.Region != "addis ababa" || listing.Currency != "ETB" || listing.OwnerID != "owner-1" {
		t.Fatalf("unexpected normalization: %+v", listing)
	}
	if listing.OfferType != OfferTypeRent {
		t.Fatalf("expected vehicle to default to rent, got %s", listing.OfferType)
	}
	if listing.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps")
	}

	if _, err := NewDraftListing("lst-2", "boat", "", "", "", "", decimal.Zero, "", now); !errors.Is(err, domainerrors.ErrInvalidListingKind) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestListingReservationActive(t *testing.T) {
	now := time.Now().UTC()
	expires := now.Add(time.Minute)
	listing := Listing{Status: ListingStatusReserved, ReservationExpiresAt: &expires}

	if !listing.ReservationActive(now) {
		t.Fatalf("expected reservation to be active before expiry")
	}
	if listing.ReservationActive(expires) {
		t.Fatalf("expected reservation to lapse at its expiry instant")
	}
	listing.Status = ListingStatusActive
	if listing.ReservationActive(now) {
		t.Fatalf("expected non-reserved listing to have no active reservation")
	}
}

func TestListingNextBumpsVersion(t *testing.T) {
	listing := Listing{Status: ListingStatusDraft, Version: 4}
	next := listing.Next(ListingStatusActive, time.Now())
	if next.Version != 5 || next.Status != ListingStatusActive {
		t.Fatalf("expected active v5, got %s v%d", next.Status, next.Version)
	}
	if listing.Version != 4 {
		t.Fatalf("expected original listing untouched")
	}
}

func TestNewTransactionValidation(t *testing.T) {
	now := time.Now()
	amount := decimal.RequireFromString("100")

	cases := []struct {
		name     string
		buyer    string
		key      string
		amount   decimal.Decimal
		currency string
		want     error
	}{
		{name: "missing buyer", buyer: "", key: "k", amount: amount, currency: "ETB", want: domainerrors.ErrBuyerRequired},
		{name: "missing key", buyer: "b", key: " ", amount: amount, currency: "ETB", want: domainerrors.ErrIdempotencyKeyRequired},
		{name: "zero amount", buyer: "b", key: "k", amount: decimal.Zero, currency: "ETB", want: domainerrors.ErrInvalidAmount},
		{name: "bad currency", buyer: "b", key: "k", amount: amount, currency: "E1B", want: domainerrors.ErrInvalidCurrency},
	}
	for _, tc := range cases {
		if _, err := NewTransaction("txn-1", "lst-1", tc.buyer, tc.amount, tc.currency, "", tc.key, now); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	txn, err := NewTransaction("txn-1", "lst-1", "buyer-1", amount, "usd", "", "key-1", now)
	if err != nil {
		t.Fatalf("new transaction failed: %v", err)
	}
	if txn.Status != TransactionStatusPending || txn.Gateway != PaymentGatewayManual || txn.Currency != "USD" {
		t.Fatalf("unexpected transaction defaults: %+v", txn)
	}
	if !txn.Status.IsOpen() || TransactionStatusCaptured.IsOpen() {
		t.Fatalf("unexpected open-status classification")
	}
	if txn.Status.IsFinal() || TransactionStatusCaptured.IsFinal() || !TransactionStatusFailed.IsFinal() || !TransactionStatusRefunded.IsFinal() {
		t.Fatalf("unexpected final-status classification")
	}
}

func TestLeadAssignmentSLAExpired(t *testing.T) {
	assigned := time.Now().UTC().Add(-2 * time.Hour)
	assignment := LeadAssignment{Status: AssignmentStatusActive, AssignedAt: assigned}

	if !assignment.SLAExpired(time.Now(), time.Hour) {
		t.Fatalf("expected unacknowledged assignment past SLA to be expired")
	}
	ack := assigned.Add(time.Minute)
	assignment.AcknowledgedAt = &ack
	if assignment.SLAExpired(time.Now(), time.Hour) {
		t.Fatalf("expected acknowledged assignment to never expire")
	}
}

func TestBrokerServes(t *testing.T) {
	broker := Broker{Regions: []string{"adama"}, Kinds: []ListingKind{ListingKindVehicle}}
	if !broker.Serves(Listing{Region: "adama", Kind: ListingKindVehicle}) {
		t.Fatalf("expected broker to serve matching listing")
	}
	if broker.Serves(Listing{Region: "adama", Kind: ListingKindProperty}) {
		t.Fatalf("expected kind mismatch to be rejected")
	}
	if !(Broker{}).Serves(Listing{Region: "anywhere", Kind: ListingKindProperty}) {
		t.Fatalf("expected unrestricted broker to serve any listing")
	}
}
