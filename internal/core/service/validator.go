package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

// ValidatedLine is one distinct product of a request, matched to its
// catalog record.
type ValidatedLine struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	Available int
}

type ValidatedOrder struct {
	Customer domain.Customer
	// Lines holds one entry per distinct product, in first-appearance order
	Lines []ValidatedLine
}

// Validator checks a request against the current catalog. It never writes.
// Its stock check is advisory; the conditional decrement at commit is the
// authoritative one.
type Validator struct {
	customers port.CustomerRepository
	products  port.ProductRepository
}

func NewValidator(customers port.CustomerRepository, products port.ProductRepository) *Validator {
	return &Validator{customers: customers, products: products}
}

func (v *Validator) Validate(ctx context.Context, customerID string, items []domain.RequestedLineItem) (*ValidatedOrder, error) {
	ids, quantities, err := mergeRequest(customerID, items)
	if err != nil {
		return nil, err
	}

	customer, err := v.customers.FindCustomerByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if customer == nil {
		return nil, domain.ErrCustomerNotFound
	}

	found, err := v.products.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	if len(found) == 0 {
		return nil, domain.ErrCatalogEmpty
	}

	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ProductNotFoundError{ProductIDs: missing}
	}

	validated := &ValidatedOrder{Customer: *customer, Lines: make([]ValidatedLine, 0, len(ids))}
	var shortfalls []domain.StockShortfall
	for _, id := range ids {
		product := byID[id]
		qty := quantities[id]
		if qty > product.Quantity {
			shortfalls = append(shortfalls, domain.StockShortfall{ProductID: id, Requested: qty, Available: product.Quantity})
			continue
		}
		validated.Lines = append(validated.Lines, ValidatedLine{
			ProductID: id,
			Quantity:  qty,
			Price:     product.Price,
			Available: product.Quantity,
		})
	}
	if len(shortfalls) > 0 {
		return nil, &domain.InsufficientStockError{Shortfalls: shortfalls}
	}

	return validated, nil
}

// mergeRequest rejects malformed input and folds repeated product ids into
// one quantity, keeping first-appearance order.
func mergeRequest(customerID string, items []domain.RequestedLineItem) ([]string, map[string]int, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, nil, fmt.Errorf("%w: customer id is required", domain.ErrInvalidRequest)
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one product is required", domain.ErrInvalidRequest)
	}

	ids := make([]string, 0, len(items))
	quantities := make(map[string]int, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, nil, fmt.Errorf("%w: line %d has no product id", domain.ErrInvalidRequest, i)
		}
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: line %d quantity must be positive", domain.ErrInvalidRequest, i)
		}
		merged, seen := quantities[item.ProductID]
		if !seen {
			ids = append(ids, item.ProductID)
		}
		if item.Quantity > math.MaxInt-merged {
			return nil, nil, fmt.Errorf("%w: total quantity for %s is too large", domain.ErrInvalidRequest, item.ProductID)
		}
		quantities[item.ProductID] = merged + item.Quantity
	}
	return ids, quantities, nil
}
