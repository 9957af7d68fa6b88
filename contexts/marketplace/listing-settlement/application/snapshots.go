package application

import (
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
)

// ListingSnapshot is the audited before/after image of a listing.
type ListingSnapshot struct {
	ListingID            string     `json:"listing_id"`
	Kind                 string     `json:"kind"`
	OfferType            string     `json:"offer_type"`
	Status               string     `json:"status"`
	OwnerID              string     `json:"owner_id"`
	BrokerID             string     `json:"broker_id,omitempty"`
	Region               string     `json:"region,omitempty"`
	Price                string     `json:"price"`
	Currency             string     `json:"currency"`
	ReservedBy           string     `json:"reserved_by,omitempty"`
	ReservationExpiresAt *time.Time `json:"reservation_expires_at,omitempty"`
	TransactionID        string     `json:"transaction_id,omitempty"`
	CancelReason         string     `json:"cancel_reason,omitempty"`
	Version              int64      `json:"version"`
}

func SnapshotListing(listing entities.Listing) ListingSnapshot {
	return ListingSnapshot{
		ListingID:            listing.ListingID,
		Kind:                 string(listing.Kind),
		OfferType:            string(listing.OfferType),
		Status:               string(listing.Status),
		OwnerID:              listing.OwnerID,
		BrokerID:             listing.BrokerID,
		Region:               listing.Region,
		Price:                listing.Price.String(),
		Currency:             listing.Currency,
		ReservedBy:           listing.ReservedBy,
		ReservationExpiresAt: listing.ReservationExpiresAt,
		TransactionID:        listing.TransactionID,
		CancelReason:         listing.CancelReason,
		Version:              listing.Version,
	}
}

type TransactionSnapshot struct {
	TransactionID    string `json:"transaction_id"`
	ListingID        string `json:"listing_id"`
	BuyerID          string `json:"buyer_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Gateway          string `json:"gateway"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	IdempotencyKey   string `json:"idempotency_key"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

func SnapshotTransaction(txn entities.Transaction) TransactionSnapshot {
	return TransactionSnapshot{
		TransactionID:    txn.TransactionID,
		ListingID:        txn.ListingID,
		BuyerID:          txn.BuyerID,
		Amount:           txn.Amount.String(),
		Currency:         txn.Currency,
		Status:           string(txn.Status),
		Gateway:          string(txn.Gateway),
		GatewayReference: txn.GatewayReference,
		IdempotencyKey:   txn.IdempotencyKey,
		FailureReason:    txn.FailureReason,
	}
}

type AssignmentSnapshot struct {
	AssignmentID   string     `json:"assignment_id"`
	ListingID      string     `json:"listing_id"`
	BrokerID       string     `json:"broker_id"`
	Status         string     `json:"status"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ReleaseReason  string     `json:"release_reason,omitempty"`
}

func SnapshotAssignment(assignment entities.LeadAssignment) AssignmentSnapshot {
	return AssignmentSnapshot{
		AssignmentID:   assignment.AssignmentID,
		ListingID:      assignment.ListingID,
		BrokerID:       assignment.BrokerID,
		Status:         string(assignment.Status),
		AcknowledgedAt: assignment.AcknowledgedAt,
		ReleaseReason:  assignment.ReleaseReason,
	}
}
