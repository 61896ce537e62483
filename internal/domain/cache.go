package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// JobLock provides a lease shared across server instances so a scheduled job
// runs on one of them only. Acquire returns ErrLockHeld when another holder
// has the lease; release may be called more than once.
type JobLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// SignalBus relays payloads to external consumers over pub/sub and a capped,
// durable stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
