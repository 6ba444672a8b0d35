package storage

import (
	"context"

	"loanledger/internal/model"
)

// Storage defines a sink for decoded transactions.
type Storage interface {
	PutTransactionBatch(ctx context.Context, txs []model.DecodedTransaction) error
}
