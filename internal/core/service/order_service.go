package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

const defaultOrphanQueueSize = 1024

var ErrNoInventoryAdjuster = errors.New("order store is not transactional and no inventory adjuster is configured")

type Option func(*OrderService)

// WithInventory makes placement persist the order first and then apply the
// decrements through inv, instead of one store transaction.
func WithInventory(inv port.InventoryRepository) Option {
	return func(s *OrderService) {
		s.inventory = inv
	}
}

func WithOrphanQueueSize(size int) Option {
	return func(s *OrderService) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OrderService places orders: validate, snapshot prices, persist, decrement.
type OrderService struct {
	validator *Validator
	orders    port.OrderRepository
	txOrders  port.TransactionalOrderRepository
	inventory port.InventoryRepository
	logger    *slog.Logger

	queueSize   int
	mu          sync.RWMutex
	closed      bool
	orphanQueue chan domain.Order
}

func NewOrderService(customers port.CustomerRepository, products port.ProductRepository, orders port.OrderRepository, opts ...Option) (*OrderService, error) {
	s := &OrderService{
		validator: NewValidator(customers, products),
		orders:    orders,
		logger:    slog.New(slog.DiscardHandler),
		queueSize: defaultOrphanQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inventory == nil {
		tx, ok := orders.(port.TransactionalOrderRepository)
		if !ok {
			return nil, ErrNoInventoryAdjuster
		}
		s.txOrders = tx
	}
	s.orphanQueue = make(chan domain.Order, s.queueSize)
	return s, nil
}

// PlaceOrder creates an order for customerID and takes its quantities off
// stock. Calling it twice with the same input places two orders.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID string, items []domain.RequestedLineItem) (*domain.Order, error) {
	validated, err := s.validator.Validate(ctx, customerID, items)
	if err != nil {
		return nil, err
	}

	lineItems := SnapshotPrices(validated)
	decrements := domain.DecrementsFor(lineItems)

	// Nothing has been written yet; an abandoned call stops here cleanly.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.txOrders != nil {
		return s.placeAtomically(ctx, validated.Customer, lineItems, decrements)
	}

	order, err := s.orders.CreateOrder(ctx, validated.Customer, lineItems)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	// The order exists now, so finish the decrement even if the caller gives up.
	if err := s.inventory.AdjustProductQuantities(context.WithoutCancel(ctx), decrements); err != nil {
		s.logger.ErrorContext(ctx, "inventory update failed, order needs reconciliation",
			"order_id", order.ID, "customer_id", order.CustomerID, "error", err)
		s.enqueueOrphan(ctx, *order)
		return nil, &domain.InventoryUpdateError{OrderID: order.ID, Err: err}
	}

	return order, nil
}

func (s *OrderService) placeAtomically(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem, decrements domain.StockDecrements) (*domain.Order, error) {
	order, err := s.txOrders.CreateOrderWithDecrements(ctx, customer, items, decrements)
	if err != nil {
		if errors.Is(err, domain.ErrStockExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return order, nil
}

func (s *OrderService) enqueueOrphan(ctx context.Context, order domain.Order) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.WarnContext(ctx, "service closed, orphan order not queued", "order_id", order.ID)
		return
	}
	select {
	case s.orphanQueue <- order:
	default:
		s.logger.WarnContext(ctx, "orphan queue full, order left for offline reconciliation", "order_id", order.ID)
	}
}

// Orphans yields orders that were persisted but whose stock was never
// decremented.
func (s *OrderService) Orphans() <-chan domain.Order {
	return s.orphanQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.orphanQueue)
}

var _ port.OrderPlacer = (*OrderService)(nil)
