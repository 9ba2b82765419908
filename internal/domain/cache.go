package domain

import (
	"context"
	"time"
)

// LadingCache is a read-through cache for bill-of-lading lookups used by the
// query service. Implementations return ErrNotFound on a miss.
type LadingCache interface {
	Set(ctx context.Context, b BillOfLading) error
	GetByHash(ctx context.Context, hash string) (BillOfLading, error)
	GetByAddress(ctx context.Context, address string) (BillOfLading, error)
	// Invalidate drops the cached entry for a hash; best-effort.
	Invalidate(ctx context.Context, hash string) error
}

// SignalBus provides pub/sub fan-out of applied-event notifications from the
// indexer to interested consumers (the WebSocket hub, other processes).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads that is closed when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds request rates per key.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a sliding
	// window of the given size, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
