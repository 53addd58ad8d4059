package port

import (
	"context"

	"github.com/rl1809/order-placement/internal/core/domain"
)

type CustomerRepository interface {
	// FindCustomerByID returns nil, nil when the customer does not exist
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
}

type ProductRepository interface {
	// FindProductsByIDs returns the products that exist; it may return fewer than requested
	FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// ListProducts returns the whole catalog
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
