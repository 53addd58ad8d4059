package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-placement/internal/adapter/storage"
	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/core/service"
	"github.com/rl1809/order-placement/internal/worker"
)

const (
	productID     = "flash-sale-item"
	initialStock  = 20
	totalRequests = 50
)

// Set STRESS_REDIS_ADDR to run the placements through the Redis stock ledger
// instead of the store's own transaction.
func main() {
	ctx := context.Background()

	store := storage.NewMemoryAdapter()
	store.AddProduct(domain.Product{ID: productID, Name: "Flash Sale Item", Price: decimal.RequireFromString("9.99"), Quantity: initialStock})
	for i := 0; i < totalRequests; i++ {
		store.AddCustomer(domain.Customer{ID: fmt.Sprintf("user-%d", i)})
	}

	var opts []service.Option
	var rdb *redis.Client
	if addr := os.Getenv("STRESS_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()

		ledger := storage.NewRedisAdapter(rdb)
		if err := ledger.SetStock(ctx, productID, initialStock); err != nil {
			log.Fatalf("failed to set stock: %v", err)
		}
		opts = append(opts, service.WithInventory(service.NewReservingAdjuster(ledger, store, nil)))
	}

	orderService, err := service.NewOrderService(store, store, store, opts...)
	if err != nil {
		log.Fatalf("failed to build order service: %v", err)
	}
	// Orders refused by the ledger were already stored; cancel them.
	reconciler := worker.NewReconciler(orderService.Orphans(), store, 4, nil)
	reconciler.Start()

	var successCount, exhaustedCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, fmt.Sprintf("user-%d", userID),
				[]domain.RequestedLineItem{{ProductID: productID, Quantity: 1}})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrStockExhausted), errors.Is(err, domain.ErrInsufficientStock):
				exhaustedCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("user-%d: unexpected error: %v", userID, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	orderService.Close()
	reconciler.Wait()

	success := successCount.Load()
	exhausted := exhaustedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Placed:           %d\n", success)
	fmt.Printf("Out of stock:     %d\n", exhausted)
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Orders stored:    %d (refused ledger orders are cancelled)\n", store.OrderCount())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && exhausted == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d orders placed, %d refused\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d placed/%d refused, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, exhausted)
	}

	p, _ := store.Product(productID)
	remaining := p.Quantity
	fmt.Printf("Final Stock:      %d\n", remaining)
	if rdb != nil {
		ledgerStock, _, err := storage.NewRedisAdapter(rdb).GetStock(ctx, productID)
		if err != nil {
			log.Fatalf("failed to read ledger stock: %v", err)
		}
		fmt.Printf("Final Ledger:     %d\n", ledgerStock)
		if ledgerStock != remaining {
			fmt.Printf("FAIL: ledger %d and catalog %d disagree\n", ledgerStock, remaining)
		}
	}
	if remaining == 0 {
		fmt.Println("PASS: stock depleted to 0, nothing oversold")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", remaining)
	}
}
