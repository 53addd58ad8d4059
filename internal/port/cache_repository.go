package port

import "context"

type StockCache interface {
	// DecrementStock atomically decreases stock, returns false if insufficient
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock restores stock (for rollback on failure)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// SetStock overwrites the ledger value for a product
	SetStock(ctx context.Context, productID string, quantity int) error
}
