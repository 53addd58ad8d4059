package service

import "github.com/rl1809/order-placement/internal/core/domain"

// SnapshotPrices freezes the catalog price of each validated line onto the
// order line items.
func SnapshotPrices(order *ValidatedOrder) []domain.OrderLineItem {
	items := make([]domain.OrderLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, domain.OrderLineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	return items
}
