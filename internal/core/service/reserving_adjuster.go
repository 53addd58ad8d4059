package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

// ReservingAdjuster applies a set of decrements on a ledger that only offers
// per-product atomic operations. Every product is reserved first; if any
// reservation fails the ones already taken are released again.
//
// When a store is given, a full reservation is then written to the store's
// catalog as well, so the catalog never lags behind the ledger. A store
// failure releases the whole reservation.
type ReservingAdjuster struct {
	cache  port.StockCache
	store  port.InventoryRepository
	logger *slog.Logger
}

// NewReservingAdjuster builds an adjuster over cache. store may be nil for a
// ledger-only adjuster.
func NewReservingAdjuster(cache port.StockCache, store port.InventoryRepository, logger *slog.Logger) *ReservingAdjuster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReservingAdjuster{cache: cache, store: store, logger: logger}
}

func (a *ReservingAdjuster) AdjustProductQuantities(ctx context.Context, decrements domain.StockDecrements) error {
	if err := decrements.Check(); err != nil {
		return err
	}
	if err := a.reserve(ctx, decrements); err != nil {
		return err
	}
	if a.store == nil {
		return nil
	}

	if err := a.store.AdjustProductQuantities(ctx, decrements); err != nil {
		a.logger.WarnContext(ctx, "store rejected reserved decrements, releasing ledger", "error", err)
		if relErr := a.release(ctx, map[string]int(decrements)); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}
	return nil
}

func (a *ReservingAdjuster) reserve(ctx context.Context, decrements domain.StockDecrements) error {
	reserved := make(map[string]int, len(decrements))
	var exhausted []string
	var reserveErr error

	for _, id := range decrements.ProductIDs() {
		qty := decrements[id]
		ok, err := a.cache.DecrementStock(ctx, id, qty)
		if err != nil {
			reserveErr = fmt.Errorf("reserve %s: %w", id, err)
			break
		}
		if !ok {
			exhausted = append(exhausted, id)
			continue
		}
		reserved[id] = qty
	}

	if reserveErr == nil && len(exhausted) == 0 {
		return nil
	}

	if err := a.release(ctx, reserved); err != nil {
		reserveErr = errors.Join(reserveErr, err)
	}
	if reserveErr != nil {
		return reserveErr
	}
	return &domain.StockExhaustedError{ProductIDs: exhausted}
}

func (a *ReservingAdjuster) release(ctx context.Context, reserved map[string]int) error {
	var errs []error
	for id, qty := range reserved {
		if err := a.cache.IncrementStock(ctx, id, qty); err != nil {
			a.logger.ErrorContext(ctx, "CRITICAL stock release failed", "product_id", id, "quantity", qty, "error", err)
			errs = append(errs, fmt.Errorf("release %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

var _ port.InventoryRepository = (*ReservingAdjuster)(nil)
