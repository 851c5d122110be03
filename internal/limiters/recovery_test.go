package limiters

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRecoveryThrottleIdentifierWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	l := NewRecoveryThrottle(rdb, "rcv", RecoveryThrottleConfig{
		EnableIdentifierThrottle: true,
		Window:                   time.Minute,
		MaxRequests:              2,
	})

	for i := 0; i < 2; i++ {
		if err := l.CheckCreate(ctx, "Alice", ""); err != nil {
			t.Fatalf("request %d should pass: %v", i+1, err)
		}
	}
	if err := l.CheckCreate(ctx, "alice", ""); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected case-insensitive identifier limit, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckCreate(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestRecoveryThrottleIPShared(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	l := NewRecoveryThrottle(rdb, "rcv", RecoveryThrottleConfig{
		EnableIPThrottle: true,
		Window:           time.Minute,
		MaxRequests:      2,
	})

	if err := l.CheckCreate(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckResend(ctx, "uid-1", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckCreate(ctx, "bob", "10.0.0.1"); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected shared ip window to be exhausted, got %v", err)
	}
}

func TestRecoveryThrottleNilSafe(t *testing.T) {
	var l *RecoveryThrottle
	if err := l.CheckCreate(context.Background(), "alice", "10.0.0.1"); err != nil {
		t.Fatalf("nil limiter must allow, got %v", err)
	}
}

func TestRecoveryThrottleRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRecoveryThrottle(rdb, "", RecoveryThrottleConfig{
		EnableIdentifierThrottle: true,
		Window:                   time.Minute,
		MaxRequests:              2,
	})
	mr.Close()

	if err := l.CheckCreate(context.Background(), "alice", ""); !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
}

func TestAttemptGuard(t *testing.T) {
	g := NewAttemptGuard(3)

	if g.IsLocked(2) {
		t.Fatal("2 attempts should not lock with ceiling 3")
	}
	if !g.IsLocked(3) {
		t.Fatal("3 attempts should lock with ceiling 3")
	}
	if got := g.RecordFailure(2); got != 3 {
		t.Fatalf("RecordFailure(2) = %d", got)
	}
	if got := g.RecordFailure(math.MaxUint16); got != math.MaxUint16 {
		t.Fatalf("RecordFailure must saturate, got %d", got)
	}

	now := time.Unix(1_700_000_000, 0)
	if g.ShouldExpireNow(now.Unix(), now) {
		t.Fatal("record must be valid at exactly expiresAt")
	}
	if !g.ShouldExpireNow(now.Unix()-1, now) {
		t.Fatal("record must expire after expiresAt")
	}
}
