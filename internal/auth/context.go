package auth

import (
	"context"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type transactionIDKey struct{}

func ContextWithTransactionID(ctx context.Context, id domain.TransactionID) context.Context {
	return context.WithValue(ctx, transactionIDKey{}, id)
}

// TransactionIDFromContext returns the transaction the caller's session token was issued for.
func TransactionIDFromContext(ctx context.Context) (domain.TransactionID, bool) {
	id, ok := ctx.Value(transactionIDKey{}).(domain.TransactionID)
	return id, ok
}
