package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

// MemoryAdapter keeps customers, products and orders in process memory.
// A single mutex serialises every write, which makes each call atomic.
type MemoryAdapter struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	now       func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryAdapter) AddCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *MemoryAdapter) AddProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryAdapter) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryAdapter) FindProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) ListProducts(_ context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Product returns the current catalog record for id.
func (m *MemoryAdapter) Product(id string) (domain.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok
}

func (m *MemoryAdapter) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

// OrderCount returns how many orders have been stored.
func (m *MemoryAdapter) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func (m *MemoryAdapter) CreateOrder(_ context.Context, customer domain.Customer, items []domain.OrderLineItem) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertOrderLocked(customer, items), nil
}

func (m *MemoryAdapter) CreateOrderWithDecrements(_ context.Context, customer domain.Customer, items []domain.OrderLineItem, decrements domain.StockDecrements) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.decrementLocked(decrements); err != nil {
		return nil, err
	}
	return m.insertOrderLocked(customer, items), nil
}

func (m *MemoryAdapter) AdjustProductQuantities(_ context.Context, decrements domain.StockDecrements) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decrementLocked(decrements)
}

func (m *MemoryAdapter) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	return nil
}

// decrementLocked checks every product before touching any of them.
func (m *MemoryAdapter) decrementLocked(decrements domain.StockDecrements) error {
	if err := decrements.Check(); err != nil {
		return err
	}
	ids := decrements.ProductIDs()
	var exhausted []string
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok || p.Quantity < decrements[id] {
			exhausted = append(exhausted, id)
		}
	}
	if len(exhausted) > 0 {
		return &domain.StockExhaustedError{ProductIDs: exhausted}
	}
	for _, id := range ids {
		p := m.products[id]
		p.Quantity -= decrements[id]
		m.products[id] = p
	}
	return nil
}

func (m *MemoryAdapter) insertOrderLocked(customer domain.Customer, items []domain.OrderLineItem) *domain.Order {
	now := m.now()
	o := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Items:      append([]domain.OrderLineItem(nil), items...),
		Status:     domain.OrderStatusPlaced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.orders[o.ID] = o
	return cloneOrder(o)
}

func cloneOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderLineItem(nil), o.Items...)
	return &o
}

var (
	_ port.CustomerRepository           = (*MemoryAdapter)(nil)
	_ port.ProductRepository            = (*MemoryAdapter)(nil)
	_ port.TransactionalOrderRepository = (*MemoryAdapter)(nil)
	_ port.InventoryRepository          = (*MemoryAdapter)(nil)
	_ port.OrderCanceller               = (*MemoryAdapter)(nil)
)
