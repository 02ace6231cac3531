// Package cache provides the shared key/value cache behind the rate limiter,
// auth lockout, CSRF tokens, idempotency keys, QR data URIs and the diag
// cleanup counter. Keys are fully qualified by the caller (e.g.
// "csrf:<user>:<token>") so tenants never collide.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL'd key/value store shared across workers. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the value and whether the key exists and is unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent. Returns true when this call
	// created the key — the idempotency sentinel relies on this exclusivity.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Incr atomically increments the counter at key, setting ttl when the
	// key is created. Returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
