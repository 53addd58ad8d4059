package port

import (
	"context"

	"github.com/rl1809/order-placement/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists the order header and all line items in one write,
	// assigning the order id and timestamps
	CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (*domain.Order, error)
}

type TransactionalOrderRepository interface {
	OrderRepository

	// CreateOrderWithDecrements inserts the order and applies the conditional
	// stock decrements in a single transaction. A failed decrement rolls back
	// everything and returns *domain.StockExhaustedError
	CreateOrderWithDecrements(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem, decrements domain.StockDecrements) (*domain.Order, error)
}

type OrderCanceller interface {
	// CancelOrder marks an order as cancelled; used to reconcile orders whose
	// stock decrement never happened
	CancelOrder(ctx context.Context, orderID string) error
}
