package domain

import (
	"context"
	"time"
)

// PoolCache provides fast pool metadata lookups.
type PoolCache interface {
	Set(ctx context.Context, pool Pool) error
	Get(ctx context.Context, id string) (Pool, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The pool service takes a
// per-pool lock around every mutating call so that at most one mutation per
// pool is in flight at a time across all server processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live event fan-out and durable streams for
// replayable settlement history.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
