package queries

import (
	"context"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

type GetTransactionUseCase struct {
	Transactions ports.TransactionRepository
}

func (u GetTransactionUseCase) Execute(ctx context.Context, transactionID string) (entities.Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return entities.Transaction{}, domainerrors.ErrTransactionNotFound
	}
	return u.Transactions.GetTransaction(ctx, transactionID)
}
