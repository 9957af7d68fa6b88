package entities

import (
	"strings"
	"time"

	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusAuthorized TransactionStatus = "authorized"
	TransactionStatusCaptured   TransactionStatus = "captured"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// IsOpen reports whether the transaction still counts against the
// one-open-transaction-per-listing invariant.
func (s TransactionStatus) IsOpen() bool {
	return s == TransactionStatusPending || s == TransactionStatusAuthorized
}

// IsFinal reports whether no gateway event can move the transaction again.
func (s TransactionStatus) IsFinal() bool {
	return s == TransactionStatusFailed || s == TransactionStatusRefunded
}

type PaymentGateway string

const (
	PaymentGatewayChapa    PaymentGateway = "chapa"
	PaymentGatewayTelebirr PaymentGateway = "telebirr"
	PaymentGatewayStripe   PaymentGateway = "stripe"
	PaymentGatewayManual   PaymentGateway = "manual"
)

type Transaction struct {
	TransactionID    string
	ListingID        string
	BuyerID          string
	Amount           decimal.Decimal
	Currency         string
	Status           TransactionStatus
	Gateway          PaymentGateway
	GatewayReference string
	IdempotencyKey   string
	FailureReason    string
	CapturedAt       *time.Time
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewTransaction(
	transactionID string,
	listingID string,
	buyerID string,
	amount decimal.Decimal,
	currency string,
	gateway PaymentGateway,
	idempotencyKey string,
	now time.Time,
) (Transaction, error) {
	if strings.TrimSpace(transactionID) == "" || strings.TrimSpace(listingID) == "" {
		return Transaction{}, domainerrors.ErrInvalidTransaction
	}
	if strings.TrimSpace(buyerID) == "" {
		return Transaction{}, domainerrors.ErrBuyerRequired
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return Transaction{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if !amount.IsPositive() {
		return Transaction{}, domainerrors.ErrInvalidAmount
	}
	if !ValidCurrency(currency) {
		return Transaction{}, domainerrors.ErrInvalidCurrency
	}
	if gateway == "" {
		gateway = PaymentGatewayManual
	}
	return Transaction{
		TransactionID:  transactionID,
		ListingID:      listingID,
		BuyerID:        buyerID,
		Amount:         amount,
		Currency:       strings.ToUpper(currency),
		Status:         TransactionStatusPending,
		Gateway:        gateway,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, nil
}

// ValidCurrency accepts 3-letter alphabetic ISO-4217 style codes.
func ValidCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
