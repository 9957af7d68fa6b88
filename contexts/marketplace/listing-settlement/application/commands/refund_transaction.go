package commands

import (
	"context"
	"log/slog"
	"strings"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

type RefundTransactionCommand struct {
	TransactionID string
	ActorID       string
	Reason        string
}

// RefundTransactionUseCase refunds a captured transaction. The listing keeps
// its sold or leased status; the refund is a ledger-only event.
type RefundTransactionUseCase struct {
	Ledger application.Ledger
	Logger *slog.Logger
}

func (u RefundTransactionUseCase) Execute(ctx context.Context, cmd RefundTransactionCommand) (entities.Transaction, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.TransactionID) == "" {
		return entities.Transaction{}, domainerrors.ErrInvalidTransaction
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return entities.Transaction{}, domainerrors.ErrReasonRequired
	}

	refunded, err := u.Ledger.Refund(ctx, cmd.TransactionID, cmd.ActorID, cmd.Reason)
	if err != nil {
		logger.Warn("refund rejected",
			"event", "settlement_refund_rejected",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"transaction_id", cmd.TransactionID,
			"error", err.Error(),
		)
		return entities.Transaction{}, err
	}
	logger.Info("transaction refunded",
		"event", "settlement_transaction_refunded",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"transaction_id", refunded.TransactionID,
		"listing_id", refunded.ListingID,
	)
	return refunded, nil
}
