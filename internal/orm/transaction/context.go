package transaction

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const contextKeyTransaction contextKey = "admin:transaction"

// FromContext retrieves a transaction from the context
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*Transaction)
	return tx, ok
}

// WithContext returns a new context with the transaction embedded
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}
