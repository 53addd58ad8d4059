package port

import (
	"context"

	"github.com/rl1809/order-placement/internal/core/domain"
)

type InventoryRepository interface {
	// AdjustProductQuantities applies every decrement or none of them. Each
	// decrement only succeeds if the stored quantity is at least the amount
	// at write time; failures return *domain.StockExhaustedError
	AdjustProductQuantities(ctx context.Context, decrements domain.StockDecrements) error
}
