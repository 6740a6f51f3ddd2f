package cron

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
)

const defaultLockTTL = 10 * time.Minute

// Locker hands out per-job leases so a job runs on one worker at a time.
type Locker interface {
	Acquire(ctx context.Context, job string) (Lease, bool, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	LockKey(name string) string
}

// RedisLocker takes job locks with SET NX and a TTL. A worker that dies
// mid-run frees the job once the TTL passes.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
}

func NewRedisLocker(store lockStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (Lease, bool, error) {
	if job == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "job name required for lock")
	}
	key := l.store.LockKey(job)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire job lock")
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{store: l.store, key: key, owner: owner}, true, nil
}

type redisLease struct {
	store lockStore
	key   string
	owner string
}

// Release deletes the key only while this lease still owns it. An expired
// lease that another worker has since taken is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.store.ReleaseLock(ctx, l.key, l.owner); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release job lock")
	}
	return nil
}
