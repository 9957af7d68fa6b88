package entities

import (
	"strings"
	"time"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"

	"github.com/shopspring/decimal"
)

type ListingKind string

const (
	ListingKindProperty ListingKind = "property"
	ListingKindVehicle  ListingKind = "vehicle"
)

type OfferType string

const (
	OfferTypeSale OfferType = "sale"
	OfferTypeRent OfferType = "rent"
)

type ListingStatus string

const (
	ListingStatusDraft            ListingStatus = "draft"
	ListingStatusActive           ListingStatus = "active"
	ListingStatusReserved         ListingStatus = "reserved"
	ListingStatusUnderTransaction ListingStatus = "under_transaction"
	ListingStatusSold             ListingStatus = "sold"
	ListingStatusLeased           ListingStatus = "leased"
	ListingStatusCancelled        ListingStatus = "cancelled"
	ListingStatusArchived         ListingStatus = "archived"
)

// IsTerminal reports whether no client transition leaves the status except archival.
func (s ListingStatus) IsTerminal() bool {
	switch s {
	case ListingStatusSold, ListingStatusLeased, ListingStatusCancelled, ListingStatusArchived:
		return true
	default:
		return false
	}
}

type Listing struct {
	ListingID            string
	Kind                 ListingKind
	OfferType            OfferType
	Status               ListingStatus
	Title                string
	Region               string
	OwnerID              string
	BrokerID             string
	Price                decimal.Decimal
	Currency             string
	ReservedBy           string
	ReservationExpiresAt *time.Time
	TransactionID        string
	CancelReason         string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewDraftListing builds a version-0 draft. Field completeness is only
// enforced at publish time so owners can save partial drafts.
func NewDraftListing(
	listingID string,
	kind ListingKind,
	offerType OfferType,
	title string,
	region string,
	ownerID string,
	price decimal.Decimal,
	currency string,
	now time.Time,
) (Listing, error) {
	if strings.TrimSpace(listingID) == "" {
		return Listing{}, domainerrors.ErrInvalidListing
	}
	if kind != "" && kind != ListingKindProperty && kind != ListingKindVehicle {
		return Listing{}, domainerrors.ErrInvalidListingKind
	}
	if offerType == "" {
		offerType = DefaultOfferType(kind)
	}
	return Listing{
		ListingID: listingID,
		Kind:      kind,
		OfferType: offerType,
		Status:    ListingStatusDraft,
		Title:     strings.TrimSpace(title),
		Region:    strings.ToLower(strings.TrimSpace(region)),
		OwnerID:   strings.TrimSpace(ownerID),
		Price:     price,
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		Version:   0,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// DefaultOfferType mirrors the marketplace convention: properties are sold,
// vehicles are leased, unless the owner says otherwise.
func DefaultOfferType(kind ListingKind) OfferType {
	if kind == ListingKindVehicle {
		return OfferTypeRent
	}
	return OfferTypeSale
}

// SettledStatus is the terminal status a captured transaction moves the listing to.
func (l Listing) SettledStatus() ListingStatus {
	offer := l.OfferType
	if offer == "" {
		offer = DefaultOfferType(l.Kind)
	}
	if offer == OfferTypeRent {
		return ListingStatusLeased
	}
	return ListingStatusSold
}

// ReservationActive reports whether the reservation still holds at now.
func (l Listing) ReservationActive(now time.Time) bool {
	if l.Status != ListingStatusReserved || l.ReservationExpiresAt == nil {
		return false
	}
	return now.UTC().Before(l.ReservationExpiresAt.UTC())
}

// Next returns a copy stamped for the following committed version.
func (l Listing) Next(status ListingStatus, now time.Time) Listing {
	next := l
	next.Status = status
	next.Version = l.Version + 1
	next.UpdatedAt = now.UTC()
	return next
}
