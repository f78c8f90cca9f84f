package pricing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQuoteCache caches quotes in redis with a short TTL.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ QuoteCache = (*RedisQuoteCache)(nil)

// NewRedisQuoteCache builds a cache around an existing redis client.
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &RedisQuoteCache{client: client, ttl: ttl}
}

func quoteKey(curveID string, quantity int64) string {
	return fmt.Sprintf("quote:%s:%d", curveID, quantity)
}

func (c *RedisQuoteCache) Get(ctx context.Context, curveID string, quantity int64) (float64, bool) {
	val, err := c.client.Get(ctx, quoteKey(curveID, quantity)).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *RedisQuoteCache) Set(ctx context.Context, curveID string, quantity int64, price float64) {
	// Cache misses are cheap; a failed write is not worth surfacing.
	_ = c.client.Set(ctx, quoteKey(curveID, quantity), strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err()
}
