package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resolvd/resolvd/internal/domain"
)

// poolTTL bounds staleness for pool metadata reads that miss an explicit
// invalidation (for example after a crashed writer).
const poolTTL = 5 * time.Minute

// PoolCache implements domain.PoolCache using JSON-serialized pool metadata
// under "pool:{id}" keys.
type PoolCache struct {
	rdb *redis.Client
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.Underlying()}
}

func poolKey(id string) string { return "pool:" + id }

// Set stores a pool in the cache with a 5-minute TTL.
func (pc *PoolCache) Set(ctx context.Context, pool domain.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("redis: marshal pool %s: %w", pool.ID, err)
	}
	if err := pc.rdb.Set(ctx, poolKey(pool.ID), data, poolTTL).Err(); err != nil {
		return fmt.Errorf("redis: set pool %s: %w", pool.ID, err)
	}
	return nil
}

// Get retrieves a pool by its ID, returning domain.ErrNotFound on a miss.
func (pc *PoolCache) Get(ctx context.Context, id string) (domain.Pool, error) {
	data, err := pc.rdb.Get(ctx, poolKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("redis: get pool %s: %w", id, err)
	}

	var pool domain.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return domain.Pool{}, fmt.Errorf("redis: unmarshal pool %s: %w", id, err)
	}
	return pool, nil
}

// Invalidate removes a pool from the cache.
func (pc *PoolCache) Invalidate(ctx context.Context, id string) error {
	if err := pc.rdb.Del(ctx, poolKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pool %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolCache = (*PoolCache)(nil)
