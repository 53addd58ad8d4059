package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-placement/internal/port"
)

const stockKeyPrefix = "stock:"

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// RedisAdapter is a stock ledger keyed by product id.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{stockKey(productID)}, quantity).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	return r.client.IncrBy(ctx, stockKey(productID), int64(quantity)).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID string, quantity int) error {
	return r.client.Set(ctx, stockKey(productID), quantity, 0).Err()
}

// GetStock returns the ledger value, or false if the product was never synced.
func (r *RedisAdapter) GetStock(ctx context.Context, productID string) (int, bool, error) {
	stock, err := r.client.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

func stockKey(productID string) string {
	return stockKeyPrefix + productID
}

var _ port.StockCache = (*RedisAdapter)(nil)
