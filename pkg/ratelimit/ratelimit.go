package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// Limiter bounds request volume per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error)
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter keeps fixed windows in a bounded, expiring LRU. Counts live in
// process memory and reset on restart; run the redis limiter when several API
// instances share traffic.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

// NewMemoryLimiter tracks at most maxKeys clients; entries expire after
// maxWindow so idle clients do not pin memory.
func NewMemoryLimiter(maxKeys int, maxWindow time.Duration) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if maxWindow <= 0 {
		maxWindow = time.Minute
	}
	return &MemoryLimiter{
		windows: expirable.NewLRU[string, *window](maxKeys, nil, maxWindow),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int64, win time.Duration) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows.Get(key)
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		m.windows.Add(key, w)
	}
	w.count++

	d := Decision{Allowed: w.count <= limit, Count: w.count, Limit: limit}
	if !d.Allowed {
		d.RetryAfter = w.resetAt.Sub(now)
	}
	return d, nil
}

// WindowStore is the redis surface used by RedisLimiter.
type WindowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
}

// RedisLimiter shares windows across instances through INCR+EXPIRE.
type RedisLimiter struct {
	store WindowStore
}

func NewRedisLimiter(store WindowStore) (*RedisLimiter, error) {
	if store == nil {
		return nil, errors.New("redis store required for rate limiter")
	}
	return &RedisLimiter{store: store}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int64, win time.Duration) (Decision, error) {
	allowed, count, remaining, err := r.store.FixedWindowAllow(ctx, key, limit, win)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: allowed, Count: count, Limit: limit}
	if !allowed {
		d.RetryAfter = remaining
	}
	return d, nil
}
