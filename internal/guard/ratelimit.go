package guard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/cache"
)

const (
	// MaxPerWindow is the request budget per (tenant, ip) per rolling minute.
	MaxPerWindow = 10

	// RedirectMaxPerWindow is the looser budget for the shortlink redirect
	// page. The page stays outside the envelope budget, but each hit appends
	// a click row, so it cannot be unmetered.
	RedirectMaxPerWindow = 60

	// LockoutThreshold failed auth attempts within LockoutWindow block the
	// (tenant, ip) pair entirely.
	LockoutThreshold = 5
	LockoutWindow    = 15 * time.Minute
)

// RateLimiter enforces the per-minute request budget and the failed-auth
// lockout. Counters live in the shared cache so every worker sees the same
// windows.
type RateLimiter struct {
	cache cache.Cache
	now   func() time.Time
}

// NewRateLimiter creates a limiter over the shared cache.
func NewRateLimiter(c cache.Cache) *RateLimiter {
	return &RateLimiter{cache: c, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (rl *RateLimiter) SetClock(now func() time.Time) { rl.now = now }

// Allow admits or rejects one request for (tenant, ip). It counts the
// current and previous minute buckets together, which guarantees the rolling
// 60s window never admits more than MaxPerWindow requests. A cache failure
// admits the request — availability over strictness.
func (rl *RateLimiter) Allow(ctx context.Context, tenantID, ip string) error {
	return rl.allow(ctx, "rl", tenantID, ip, MaxPerWindow)
}

// AllowRedirect meters the shortlink redirect page on its own counters with
// the RedirectMaxPerWindow budget, so redirect traffic neither consumes nor
// escapes the envelope budget.
func (rl *RateLimiter) AllowRedirect(ctx context.Context, tenantID, ip string) error {
	return rl.allow(ctx, "rlr", tenantID, ip, RedirectMaxPerWindow)
}

func (rl *RateLimiter) allow(ctx context.Context, prefix, tenantID, ip string, budget int64) error {
	minute := rl.now().Unix() / 60
	curKey := bucketKey(prefix, tenantID, ip, minute)
	prevKey := bucketKey(prefix, tenantID, ip, minute-1)

	cur, err := rl.cache.Incr(ctx, curKey, 2*time.Minute)
	if err != nil {
		return nil
	}
	prev := int64(0)
	if v, found, err := rl.cache.Get(ctx, prevKey); err == nil && found {
		prev, _ = strconv.ParseInt(v, 10, 64)
	}

	if cur+prev > budget {
		return apperr.New(apperr.RateLimited, "Too many requests")
	}
	return nil
}

// RecordAuthFailure bumps the failed-auth counter for (tenant, ip). The
// counter's TTL anchors the 15-minute lockout window at the first failure.
func (rl *RateLimiter) RecordAuthFailure(ctx context.Context, tenantID, ip string) {
	rl.cache.Incr(ctx, lockoutKey(tenantID, ip), LockoutWindow)
}

// LockedOut reports whether (tenant, ip) has exceeded the failure threshold
// and must be rejected until the window rolls off.
func (rl *RateLimiter) LockedOut(ctx context.Context, tenantID, ip string) bool {
	v, found, err := rl.cache.Get(ctx, lockoutKey(tenantID, ip))
	if err != nil || !found {
		return false
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n >= LockoutThreshold
}

func bucketKey(prefix, tenantID, ip string, minute int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", prefix, tenantID, ip, minute)
}

func lockoutKey(tenantID, ip string) string {
	return fmt.Sprintf("lockout:%s:%s", tenantID, ip)
}
