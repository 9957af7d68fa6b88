package commands

import (
	"context"
	"errors"
	"strings"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"

	"github.com/shopspring/decimal"
)

type StartTransactionCommand struct {
	ListingID      string
	BuyerID        string
	Amount         decimal.Decimal
	Currency       string
	Gateway        entities.PaymentGateway
	IdempotencyKey string
}

type StartTransactionResult struct {
	Listing     entities.Listing
	Transaction entities.Transaction
	Replayed    bool
	// InitiationErr is set when the gateway could not be reached. The
	// transaction stays pending and the reconciliation sweep picks it up.
	InitiationErr error
}

// StartTransaction converts the buyer's reservation into a pending ledger
// transaction. The ledger row and the listing move commit together; the
// gateway is called only after that commit.
func (m ListingStateMachine) StartTransaction(ctx context.Context, cmd StartTransactionCommand) (StartTransactionResult, error) {
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		return StartTransactionResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if strings.TrimSpace(cmd.BuyerID) == "" {
		return StartTransactionResult{}, domainerrors.ErrBuyerRequired
	}
	if !cmd.Amount.IsPositive() {
		return StartTransactionResult{}, domainerrors.ErrInvalidAmount
	}

	var result StartTransactionResult
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		currency := strings.ToUpper(firstNonEmpty(cmd.Currency, listing.Currency))
		if currency != listing.Currency {
			return domainerrors.ErrInvalidCurrency
		}

		input := application.OpenTransactionInput{
			Listing:        listing,
			BuyerID:        cmd.BuyerID,
			Amount:         cmd.Amount,
			Currency:       currency,
			Gateway:        cmd.Gateway,
			IdempotencyKey: key,
			ActorID:        cmd.BuyerID,
		}
		existing, found, err := m.Ledger.FindReplay(ctx, input)
		if err != nil {
			return err
		}
		if found {
			result = StartTransactionResult{Listing: listing, Transaction: existing, Replayed: true}
			return nil
		}

		if listing.Status == entities.ListingStatusUnderTransaction {
			return domainerrors.ErrOpenTransactionExists
		}
		next, err := services.NextListingStatus(listing, services.ListingEventStartTransaction)
		if err != nil {
			return err
		}
		if listing.ReservedBy != cmd.BuyerID {
			return domainerrors.ErrReservationHeldByOther
		}
		now := m.now()
		if !listing.ReservationActive(now) {
			return domainerrors.ErrReservationExpired
		}

		txn, _, err := m.Ledger.OpenTransaction(ctx, input)
		if err != nil {
			return err
		}

		after := listing.Next(next, now)
		after.TransactionID = txn.TransactionID
		after.ReservationExpiresAt = nil
		if err := m.commit(ctx, listing, after, entities.ActionListingUnderTx, cmd.BuyerID, ""); err != nil {
			return err
		}
		result = StartTransactionResult{Listing: after, Transaction: txn}
		return nil
	})
	if errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		// A concurrent request may have committed the same key between our
		// lookup and our insert. Its committed row decides.
		if replayed, ok := m.replayCommitted(ctx, cmd, key); ok {
			result, err = replayed, nil
		}
	}
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_start_transaction_rejected", err)
		return StartTransactionResult{}, err
	}

	if result.Transaction.GatewayReference == "" && result.Transaction.Status.IsOpen() {
		initiated, initErr := m.Ledger.InitiatePayment(ctx, result.Transaction.TransactionID)
		if initErr != nil {
			result.InitiationErr = initErr
		} else {
			result.Transaction = initiated
		}
	}
	if !result.Replayed {
		m.logTransition(result.Listing, "settlement_transaction_started", "listing under transaction")
	}
	return result, nil
}

func (m ListingStateMachine) replayCommitted(ctx context.Context, cmd StartTransactionCommand, key string) (StartTransactionResult, bool) {
	existing, found, err := m.Ledger.FindReplay(ctx, application.OpenTransactionInput{
		Listing:        entities.Listing{ListingID: cmd.ListingID},
		BuyerID:        cmd.BuyerID,
		Amount:         cmd.Amount,
		Currency:       cmd.Currency,
		IdempotencyKey: key,
	})
	if err != nil || !found {
		return StartTransactionResult{}, false
	}
	listing, err := m.Listings.GetListing(ctx, cmd.ListingID)
	if err != nil {
		return StartTransactionResult{}, false
	}
	return StartTransactionResult{Listing: listing, Transaction: existing, Replayed: true}, true
}
