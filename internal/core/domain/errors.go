package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest        = errors.New("invalid order request")
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCatalogEmpty          = errors.New("none of the requested products exist")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrPersistence           = errors.New("order persistence failed")
	ErrStockExhausted        = errors.New("stock exhausted")
	ErrInventoryUpdateFailed = errors.New("inventory update failed")
)

// ProductNotFoundError lists requested product ids absent from the catalog.
type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductNotFound, strings.Join(e.ProductIDs, ", "))
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// StockShortfall describes a line item asking for more than is available.
type StockShortfall struct {
	ProductID string
	Requested int
	Available int
}

type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock, strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StockExhaustedError is returned when a conditional decrement fails at
// write time for the listed products. Nothing from that call was applied.
type StockExhaustedError struct {
	ProductIDs []string
}

func (e *StockExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStockExhausted, strings.Join(e.ProductIDs, ", "))
}

func (e *StockExhaustedError) Unwrap() error { return ErrStockExhausted }

// InventoryUpdateError reports that the order was persisted but its stock
// decrements were not. The order needs reconciliation.
type InventoryUpdateError struct {
	OrderID string
	Err     error
}

func (e *InventoryUpdateError) Error() string {
	return fmt.Sprintf("%s for order %s: %v", ErrInventoryUpdateFailed, e.OrderID, e.Err)
}

func (e *InventoryUpdateError) Unwrap() []error {
	return []error{ErrInventoryUpdateFailed, e.Err}
}

// IsRetryable reports whether err came from a stock race. Such placements
// may be retried from the start; every other failure needs a new request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStockExhausted) || errors.Is(err, ErrInventoryUpdateFailed)
}
