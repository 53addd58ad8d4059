package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// RequestedLineItem is one product/quantity pair supplied by the caller.
type RequestedLineItem struct {
	ProductID string
	Quantity  int
}

// OrderLineItem is a persisted line item. Price is the unit price at the
// time the order was placed and never changes afterwards.
type OrderLineItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

type Order struct {
	ID         string
	CustomerID string
	Items      []OrderLineItem
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Total is the sum of quantity * unit price over all line items.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// StockDecrements maps product id to the amount to take off its stock.
type StockDecrements map[string]int

// DecrementsFor sums line item quantities per product.
func DecrementsFor(items []OrderLineItem) StockDecrements {
	out := make(StockDecrements, len(items))
	for _, item := range items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

// ProductIDs returns the keys in ascending order. Stores apply decrements
// in this order so concurrent transactions lock rows consistently.
func (d StockDecrements) ProductIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Check rejects any decrement that would not lower stock.
func (d StockDecrements) Check() error {
	for _, id := range d.ProductIDs() {
		if d[id] <= 0 {
			return fmt.Errorf("%w: decrement for %s must be positive, got %d", ErrInvalidRequest, id, d[id])
		}
	}
	return nil
}
