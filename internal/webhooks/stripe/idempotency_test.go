package stripewebhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/kentramx/kentramx-sub001/pkg/redis"
)

func TestIdempotencyGuardClaimAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	store := pkgredis.NewFromClient(raw)

	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "evt_1")
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = guard.Claim(ctx, "evt_1")
	if err != nil || claimed {
		t.Fatalf("second claim should be refused: claimed=%v err=%v", claimed, err)
	}
	key := store.IdempotencyKey("stripe_webhook", "evt_1")
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = guard.Claim(ctx, "evt_1")
	if err != nil || !claimed {
		t.Fatalf("claim after release: claimed=%v err=%v", claimed, err)
	}

	if _, err := guard.Claim(ctx, ""); err == nil {
		t.Fatal("expected empty event id to fail")
	}
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Hour, "scope"); err == nil {
		t.Fatal("expected nil store to fail")
	}
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	store := pkgredis.NewFromClient(raw)
	if _, err := NewIdempotencyGuard(store, -time.Second, "scope"); err == nil {
		t.Fatal("expected negative ttl to fail")
	}
	if _, err := NewIdempotencyGuard(store, time.Hour, " "); err == nil {
		t.Fatal("expected blank scope to fail")
	}
}
