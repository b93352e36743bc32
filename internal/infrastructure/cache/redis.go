package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
)

// DefaultKeyPrefix namespaces inventory keys in a shared Redis
const DefaultKeyPrefix = "uxone:inventory:"

// OpenRedis parses a redis:// URL and verifies connectivity
func OpenRedis(ctx context.Context, url string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if db > 0 {
		opt.DB = db
	}

	rc := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

// RedisCache stores inventory snapshots as JSON strings with a TTL
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis-backed cache. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(sku string) string {
	return c.prefix + sku
}

func (c *RedisCache) Get(ctx context.Context, sku string) (*entity.InventoryItem, bool, error) {
	bs, err := c.client.Get(ctx, c.key(sku)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", sku, err)
	}

	var item entity.InventoryItem
	if err := json.Unmarshal(bs, &item); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on the next load
		return nil, false, nil
	}
	return &item, true, nil
}

func (c *RedisCache) Set(ctx context.Context, item *entity.InventoryItem, ttl time.Duration) error {
	bs, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode inventory item: %w", err)
	}
	if err := c.client.Set(ctx, c.key(item.SKU), bs, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", item.SKU, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sku string) error {
	if err := c.client.Del(ctx, c.key(sku)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", sku, err)
	}
	return nil
}

// Purge removes every key under the prefix
func (c *RedisCache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var _ port.InventoryCache = (*RedisCache)(nil)
