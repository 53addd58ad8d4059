package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-placement/internal/adapter/storage"
	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

func newCatalog() *storage.MemoryAdapter {
	m := storage.NewMemoryAdapter()
	m.AddCustomer(domain.Customer{ID: "C1"})
	m.AddProduct(domain.Product{ID: "P1", Price: decimal.RequireFromString("10.00"), Quantity: 5})
	m.AddProduct(domain.Product{ID: "P2", Price: decimal.RequireFromString("3.25"), Quantity: 1})
	m.AddProduct(domain.Product{ID: "P3", Price: decimal.RequireFromString("7.00"), Quantity: 100})
	return m
}

func newService(t *testing.T, store *storage.MemoryAdapter, opts ...Option) *OrderService {
	t.Helper()
	svc, err := NewOrderService(store, store, store, opts...)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func stockOf(t *testing.T, store *storage.MemoryAdapter, id string) int {
	t.Helper()
	p, ok := store.Product(id)
	if !ok {
		t.Fatalf("product %s missing", id)
	}
	return p.Quantity
}

// plainOrders hides the transactional method of the memory store so the
// service has to persist and decrement as two steps.
type plainOrders struct {
	store     *storage.MemoryAdapter
	createErr error
}

func (p *plainOrders) CreateOrder(ctx context.Context, c domain.Customer, items []domain.OrderLineItem) (*domain.Order, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.store.CreateOrder(ctx, c, items)
}

type failingInventory struct {
	err   error
	calls atomic.Int32
}

func (f *failingInventory) AdjustProductQuantities(context.Context, domain.StockDecrements) error {
	f.calls.Add(1)
	return f.err
}

// barrierProducts holds every lookup until n callers have read the catalog,
// so concurrent placements all pass validation before any of them commits.
type barrierProducts struct {
	port.ProductRepository
	wg sync.WaitGroup
}

func newBarrierProducts(inner port.ProductRepository, n int) *barrierProducts {
	b := &barrierProducts{ProductRepository: inner}
	b.wg.Add(n)
	return b
}

func (b *barrierProducts) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	products, err := b.ProductRepository.FindProductsByIDs(ctx, ids)
	b.wg.Done()
	b.wg.Wait()
	return products, err
}

func TestPlaceOrder_Success(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	order, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 2}})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if order.ID == "" || order.CreatedAt.IsZero() {
		t.Errorf("expected assigned id and timestamp, got %+v", order)
	}
	if order.CustomerID != "C1" {
		t.Errorf("expected customer C1, got %s", order.CustomerID)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.ProductID != "P1" || item.Quantity != 2 || !item.Price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("unexpected line item: %+v", item)
	}
	if stock := stockOf(t, store, "P1"); stock != 3 {
		t.Errorf("expected stock 3, got %d", stock)
	}
}

func TestPlaceOrder_MultipleProducts(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	order, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P3", Quantity: 10},
		{ProductID: "P2", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(order.Items) != 2 || order.Items[0].ProductID != "P3" || order.Items[1].ProductID != "P2" {
		t.Errorf("expected line items in request order, got %+v", order.Items)
	}
	if !order.Total().Equal(decimal.RequireFromString("73.25")) {
		t.Errorf("expected total 73.25, got %s", order.Total())
	}
	if stockOf(t, store, "P3") != 90 || stockOf(t, store, "P2") != 0 {
		t.Errorf("unexpected stock after order: P3=%d P2=%d", stockOf(t, store, "P3"), stockOf(t, store, "P2"))
	}
}

func TestPlaceOrder_MergesRepeatedProducts(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	order, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P3", Quantity: 1},
		{ProductID: "P1", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(order.Items) != 2 || order.Items[0].Quantity != 3 {
		t.Errorf("expected merged P1 line of 3, got %+v", order.Items)
	}
	if stock := stockOf(t, store, "P1"); stock != 2 {
		t.Errorf("expected stock 2, got %d", stock)
	}
}

func TestPlaceOrder_MergedQuantityExceedingStock(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P1", Quantity: 3},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got: %v", err)
	}
}

func TestPlaceOrder_CustomerNotFound(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "nobody", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("expected ErrCustomerNotFound, got: %v", err)
	}
	if store.OrderCount() != 0 || stockOf(t, store, "P1") != 5 {
		t.Error("expected no persistence or stock change")
	}
}

func TestPlaceOrder_CatalogEmpty(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "X1", Quantity: 1}, {ProductID: "X2", Quantity: 1}})
	if !errors.Is(err, domain.ErrCatalogEmpty) {
		t.Errorf("expected ErrCatalogEmpty, got: %v", err)
	}
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: 1},
		{ProductID: "P404", Quantity: 1},
	})
	var notFound *domain.ProductNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ProductNotFoundError, got: %v", err)
	}
	if len(notFound.ProductIDs) != 1 || notFound.ProductIDs[0] != "P404" {
		t.Errorf("expected exactly P404 missing, got %v", notFound.ProductIDs)
	}
	if store.OrderCount() != 0 || stockOf(t, store, "P1") != 5 {
		t.Error("expected no persistence or stock change")
	}
}

// Each line is checked against its own product, not whichever product the
// catalog happened to return first.
func TestPlaceOrder_InsufficientStockMatchedByProduct(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
		{ProductID: "P3", Quantity: 50},
	})
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if len(insufficient.Shortfalls) != 1 {
		t.Fatalf("expected one shortfall, got %+v", insufficient.Shortfalls)
	}
	got := insufficient.Shortfalls[0]
	if got.ProductID != "P2" || got.Requested != 3 || got.Available != 1 {
		t.Errorf("unexpected shortfall: %+v", got)
	}
	if store.OrderCount() != 0 {
		t.Error("expected no order to be stored")
	}
}

func TestPlaceOrder_ReportsEveryShortfall(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: 6},
		{ProductID: "P2", Quantity: 2},
	})
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) || len(insufficient.Shortfalls) != 2 {
		t.Errorf("expected two shortfalls, got: %v", err)
	}
}

func TestPlaceOrder_InvalidRequest(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	cases := map[string][]domain.RequestedLineItem{
		"no items":      nil,
		"zero quantity": {{ProductID: "P1", Quantity: 0}},
		"negative":      {{ProductID: "P1", Quantity: -1}},
		"blank id":      {{ProductID: " ", Quantity: 1}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), "C1", items)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}

	if _, err := svc.PlaceOrder(context.Background(), "", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for blank customer, got: %v", err)
	}
}

func TestPlaceOrder_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	order, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	store.AddProduct(domain.Product{ID: "P1", Price: decimal.RequireFromString("12.00"), Quantity: 4})

	stored, err := store.GetOrder(context.Background(), order.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if !stored.Items[0].Price.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected recorded price 10.00, got %s", stored.Items[0].Price)
	}
}

func TestPlaceOrder_NotIdempotent(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)
	req := []domain.RequestedLineItem{{ProductID: "P1", Quantity: 2}}

	first, err := svc.PlaceOrder(context.Background(), "C1", req)
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	second, err := svc.PlaceOrder(context.Background(), "C1", req)
	if err != nil {
		t.Fatalf("second purchase failed: %v", err)
	}

	if first.ID == second.ID {
		t.Error("expected two distinct orders")
	}
	if store.OrderCount() != 2 {
		t.Errorf("expected 2 orders, got %d", store.OrderCount())
	}
	if stock := stockOf(t, store, "P1"); stock != 1 {
		t.Errorf("expected stock 1, got %d", stock)
	}
}

func TestPlaceOrder_CancelledBeforePersistence(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PlaceOrder(ctx, "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if store.OrderCount() != 0 || stockOf(t, store, "P1") != 5 {
		t.Error("expected no side effects")
	}
}

func TestPlaceOrder_ConcurrentRaceOnLastUnits(t *testing.T) {
	tests := []struct {
		name      string
		sequenced bool
	}{
		{name: "single transaction"},
		{name: "persist then adjust", sequenced: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCatalog()
			products := newBarrierProducts(store, 2)

			var orders port.OrderRepository = store
			var opts []Option
			if tt.sequenced {
				orders = &plainOrders{store: store}
				opts = append(opts, WithInventory(store))
			}
			svc, err := NewOrderService(store, products, orders, opts...)
			if err != nil {
				t.Fatalf("NewOrderService: %v", err)
			}
			defer svc.Close()

			// stock 5, each asks for 3: both pass validation, only one fits
			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 3}})
				}(i)
			}
			wg.Wait()

			var succeeded, exhausted int
			for _, err := range errs {
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, domain.ErrStockExhausted):
					exhausted++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			if succeeded != 1 || exhausted != 1 {
				t.Errorf("expected 1 success and 1 StockExhausted, got %d/%d", succeeded, exhausted)
			}
			if stock := stockOf(t, store, "P1"); stock != 2 {
				t.Errorf("expected stock 2, got %d", stock)
			}
		})
	}
}

func TestPlaceOrder_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	store := storage.NewMemoryAdapter()
	store.AddCustomer(domain.Customer{ID: "C1"})
	store.AddProduct(domain.Product{ID: "item", Price: decimal.NewFromInt(1), Quantity: initialStock})
	svc := newService(t, store)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "item", Quantity: 1}})
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrInsufficientStock) && !errors.Is(err, domain.ErrStockExhausted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if stock := stockOf(t, store, "item"); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
	if store.OrderCount() != initialStock {
		t.Errorf("expected %d orders, got %d", initialStock, store.OrderCount())
	}
}

func TestPlaceOrder_PersistenceFailureLeavesStock(t *testing.T) {
	store := newCatalog()
	inv := &failingInventory{}
	svc, err := NewOrderService(store, store, &plainOrders{store: store, createErr: errors.New("disk full")}, WithInventory(inv))
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	defer svc.Close()

	_, err = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got: %v", err)
	}
	if inv.calls.Load() != 0 {
		t.Error("expected inventory to be untouched")
	}
}

type brokenTxOrders struct {
	*storage.MemoryAdapter
}

func (brokenTxOrders) CreateOrderWithDecrements(context.Context, domain.Customer, []domain.OrderLineItem, domain.StockDecrements) (*domain.Order, error) {
	return nil, errors.New("connection reset")
}

func TestPlaceOrder_TransactionFailureIsPersistenceError(t *testing.T) {
	store := newCatalog()
	svc, err := NewOrderService(store, store, brokenTxOrders{store})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	defer svc.Close()

	_, err = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got: %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("persistence failure must not be reported as a stock race")
	}
}

func TestPlaceOrder_InventoryFailureQueuesOrphan(t *testing.T) {
	store := newCatalog()
	inv := &failingInventory{err: &domain.StockExhaustedError{ProductIDs: []string{"P1"}}}
	svc, err := NewOrderService(store, store, &plainOrders{store: store}, WithInventory(inv), WithOrphanQueueSize(1))
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	var updateErr *domain.InventoryUpdateError
	if !errors.As(err, &updateErr) {
		t.Fatalf("expected InventoryUpdateError, got: %v", err)
	}
	if !errors.Is(err, domain.ErrInventoryUpdateFailed) || !errors.Is(err, domain.ErrStockExhausted) {
		t.Errorf("expected error to match both sentinels, got: %v", err)
	}

	orphan := <-svc.Orphans()
	if orphan.ID != updateErr.OrderID {
		t.Errorf("expected orphan %s, got %s", updateErr.OrderID, orphan.ID)
	}

	// queue holds one; the next orphan is dropped rather than blocking
	_, _ = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})
	_, _ = svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}})

	svc.Close()
	var drained int
	for range svc.Orphans() {
		drained++
	}
	if drained != 1 {
		t.Errorf("expected 1 queued orphan, got %d", drained)
	}

	// closed service still reports the failure without panicking
	if _, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}}); !errors.Is(err, domain.ErrInventoryUpdateFailed) {
		t.Errorf("expected ErrInventoryUpdateFailed after close, got: %v", err)
	}
}

func TestNewOrderService_RequiresInventoryForPlainStore(t *testing.T) {
	store := newCatalog()
	if _, err := NewOrderService(store, store, &plainOrders{store: store}); !errors.Is(err, ErrNoInventoryAdjuster) {
		t.Errorf("expected ErrNoInventoryAdjuster, got: %v", err)
	}
}

func TestPlaceOrder_MergedQuantityOverflowRejected(t *testing.T) {
	store := newCatalog()
	svc := newService(t, store)

	_, err := svc.PlaceOrder(context.Background(), "C1", []domain.RequestedLineItem{
		{ProductID: "P1", Quantity: math.MaxInt},
		{ProductID: "P1", Quantity: 1},
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got: %v", err)
	}
	if store.OrderCount() != 0 || stockOf(t, store, "P1") != 5 {
		t.Errorf("expected nothing written, got %d orders and P1=%d", store.OrderCount(), stockOf(t, store, "P1"))
	}
}

func TestPlaceOrder_LedgerModeKeepsCatalogInStep(t *testing.T) {
	ctx := context.Background()
	store := newCatalog()
	ledger := newMockStockCache(map[string]int{"P1": 5})
	svc, err := NewOrderService(store, store, &plainOrders{store: store},
		WithInventory(NewReservingAdjuster(ledger, store, nil)))
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	defer svc.Close()

	if _, err := svc.PlaceOrder(ctx, "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 2}}); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if stockOf(t, store, "P1") != 3 || ledger.stock["P1"] != 3 {
		t.Fatalf("expected catalog and ledger at 3, got catalog=%d ledger=%d", stockOf(t, store, "P1"), ledger.stock["P1"])
	}

	// a restart copies the catalog back into the ledger
	products, err := store.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	for _, p := range products {
		_ = ledger.SetStock(ctx, p.ID, p.Quantity)
	}

	sold := 2
	for i := 0; i < 5; i++ {
		if _, err := svc.PlaceOrder(ctx, "C1", []domain.RequestedLineItem{{ProductID: "P1", Quantity: 1}}); err == nil {
			sold++
		}
	}
	if sold != 5 {
		t.Errorf("expected 5 units sold in total, got %d", sold)
	}
	if stockOf(t, store, "P1") != 0 || ledger.stock["P1"] != 0 {
		t.Errorf("expected catalog and ledger at 0, got catalog=%d ledger=%d", stockOf(t, store, "P1"), ledger.stock["P1"])
	}
}
