// Package guard holds the request-admission pieces: single-use CSRF tokens,
// the per-tenant sliding-window rate limit, and the failed-auth lockout.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/pkg/distlock"
)

const (
	csrfTTL      = time.Hour
	csrfLockWait = 5 * time.Second
)

// LockFactory builds a distributed lock for a key. cmd/server wires
// distlock.NewLock here; tests and redis-less deployments fall back to
// process-local mutex locks.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// CSRF issues and consumes single-use tokens. Consumption is a locked
// read-and-remove so a token can never validate twice, even across workers.
type CSRF struct {
	cache cache.Cache
	locks LockFactory
	local localLocks
}

// NewCSRF creates the CSRF token service. locks may be nil, selecting
// process-local locking.
func NewCSRF(c cache.Cache, locks LockFactory) *CSRF {
	return &CSRF{cache: c, locks: locks}
}

// Issue mints a token for the user key and stores it for one hour.
func (s *CSRF) Issue(ctx context.Context, userKey string) (string, error) {
	token := uuid.NewString()
	if err := s.cache.Set(ctx, "csrf:"+userKey+":"+token, "1", csrfTTL); err != nil {
		return "", apperr.Wrap(apperr.Internal, "Could not issue CSRF token", err)
	}
	return token, nil
}

// Validate consumes a token. It returns nil exactly once per issued token;
// a second validation of the same token fails. Lock contention beyond 5s is
// reported as RATE_LIMITED.
func (s *CSRF) Validate(ctx context.Context, userKey, token string) error {
	if token == "" {
		return apperr.New(apperr.BadInput, "Invalid CSRF token")
	}

	lock := s.lockFor(userKey)
	ok, err := distlock.AcquireWait(ctx, lock, csrfLockWait)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "CSRF lock error", err)
	}
	if !ok {
		return apperr.New(apperr.RateLimited, "Too many concurrent requests")
	}
	defer lock.Release(ctx)

	key := "csrf:" + userKey + ":" + token
	_, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "CSRF lookup error", err)
	}
	if !found {
		return apperr.New(apperr.BadInput, "Invalid CSRF token")
	}
	if err := s.cache.Remove(ctx, key); err != nil {
		return apperr.Wrap(apperr.Internal, "CSRF consume error", err)
	}
	return nil
}

func (s *CSRF) lockFor(userKey string) distlock.DistLock {
	if s.locks != nil {
		return s.locks("csrf:"+userKey, csrfLockWait)
	}
	return s.local.lock("csrf:" + userKey)
}

// localLocks provides per-key mutex locks for single-process deployments.
type localLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

type localLock struct{ mu *sync.Mutex }

func (l *localLocks) lock(key string) distlock.DistLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	if _, ok := l.m[key]; !ok {
		l.m[key] = &sync.Mutex{}
	}
	return &localLock{mu: l.m[key]}
}

func (l *localLock) Acquire(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}
