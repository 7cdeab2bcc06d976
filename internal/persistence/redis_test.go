package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(r.Close)
	return r, mr
}

func TestDisabledRedisHelpers(t *testing.T) {
	ctx := context.Background()

	release, err := NewActionLock(nil, time.Second).Acquire(ctx, "card:1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	cache := NewCache(nil, "loyalty:", time.Minute)
	if err := cache.Set(ctx, "k", []string{"v"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	var got []string
	if err := cache.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() error = %v, want ErrCacheMiss", err)
	}
	if err := (&Redis{}).Ping(ctx); err == nil {
		t.Fatal("Ping() on unconfigured client should fail")
	}
}

func TestActionLockExclusive(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	lock := NewActionLock(r, 30*time.Second)

	release, err := lock.Acquire(ctx, "card:1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := mr.TTL("lock:card:1"); got != 30*time.Second {
		t.Fatalf("lock ttl = %v", got)
	}
	if _, err := lock.Acquire(ctx, "card:1"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrLockHeld", err)
	}
	other, err := lock.Acquire(ctx, "card:2")
	if err != nil {
		t.Fatalf("Acquire(card:2) error = %v", err)
	}
	other()

	release()
	if mr.Exists("lock:card:1") {
		t.Fatal("lock not released")
	}
	again, err := lock.Acquire(ctx, "card:1")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again()
}

func TestActionLockReleaseKeepsNewOwner(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	lock := NewActionLock(r, time.Second)

	expired, err := lock.Acquire(ctx, "bundle:7")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	mr.FastForward(2 * time.Second)

	current, err := lock.Acquire(ctx, "bundle:7")
	if err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
	owner, _ := mr.Get("lock:bundle:7")

	expired()
	if got, _ := mr.Get("lock:bundle:7"); got != owner {
		t.Fatalf("stale release removed the new owner's lock (value %q)", got)
	}

	current()
	if mr.Exists("lock:bundle:7") {
		t.Fatal("owner release did not delete the lock")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	cache := NewCache(r, "loyalty:", time.Minute)

	want := []domain.ProgramSummary{{ID: "p-1", Name: "Coffee card", RequiredPunches: 10}}
	if err := cache.Set(ctx, "programs:m-1", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := mr.TTL("loyalty:programs:m-1"); got != time.Minute {
		t.Fatalf("ttl = %v", got)
	}

	var got []domain.ProgramSummary
	if err := cache.Get(ctx, "programs:m-1", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Get() = %+v, want %+v", got, want)
	}

	if err := cache.Delete(ctx, "programs:m-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := cache.Get(ctx, "programs:m-1", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}

	if err := mr.Set("loyalty:broken", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := cache.Get(ctx, "broken", &got); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() on corrupt entry error = %v", err)
	}
}

func TestCacheWithoutTTLDoesNotStore(t *testing.T) {
	r, mr := newTestRedis(t)
	cache := NewCache(r, "loyalty:", 0)

	if err := cache.Set(context.Background(), "programs:m-1", []string{"x"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if mr.Exists("loyalty:programs:m-1") {
		t.Fatal("value stored with zero ttl")
	}
}
