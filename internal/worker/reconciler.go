// Package worker runs the background reconciliation of orders whose stock
// decrement failed after the order itself was stored.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

const defaultCancelTimeout = 5 * time.Second

// Reconciler cancels orphan orders read from a queue using a fixed pool of
// workers. It stops once the queue is closed and drained.
type Reconciler struct {
	queue     <-chan domain.Order
	canceller port.OrderCanceller
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewReconciler(queue <-chan domain.Order, canceller port.OrderCanceller, workers int, logger *slog.Logger) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		queue:     queue,
		canceller: canceller,
		logger:    logger,
		workers:   workers,
		timeout:   defaultCancelTimeout,
	}
}

func (r *Reconciler) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.workerLoop(id)
		}(i)
	}
	r.logger.Info("started reconcile workers", "count", r.workers)
}

// Wait blocks until every worker has returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) workerLoop(id int) {
	for order := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)

		if err := r.canceller.CancelOrder(ctx, order.ID); err != nil {
			r.logger.Error("CRITICAL failed to cancel orphan order",
				"worker", id, "order_id", order.ID, "error", err)
		} else {
			r.logger.Info("cancelled orphan order", "worker", id, "order_id", order.ID)
		}

		cancel()
	}
}
