package stripewebhook

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/redis"
)

// IdempotencyGuard claims gateway event ids in redis so redeliveries of an
// event that already reconciled are acknowledged without work.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store is required")
	}
	if ttl < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ttl must be non-negative")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// Claim marks eventID as seen. It returns false when another delivery
// already holds the claim.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
	}
	return set, nil
}

// Release drops the claim so the gateway's redelivery is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	if err := g.store.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release webhook event")
	}
	return nil
}
