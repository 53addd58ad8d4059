package port

import (
	"context"

	"github.com/rl1809/order-placement/internal/core/domain"
)

// OrderPlacer is the inbound port served by the HTTP and gRPC handlers.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, customerID string, items []domain.RequestedLineItem) (*domain.Order, error)
}
