package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, addr string, limit int) *FixedWindowLimiter {
	t.Helper()
	limiter, err := NewFixedWindowLimiter(Config{Addr: addr, Prefix: "test:ratelimit", Limit: limit, Window: time.Minute})
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter
}

func TestTakeCountsDownPerKey(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter := newLimiter(t, srv.Addr(), 2)
	ctx := context.Background()

	first := limiter.Take(ctx, "chat:10.0.0.1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first take = %+v", first)
	}
	if second := limiter.Take(ctx, "chat:10.0.0.1"); !second.Allowed || second.Remaining != 0 {
		t.Fatalf("second take = %+v", second)
	}
	third := limiter.Take(ctx, "chat:10.0.0.1")
	if third.Allowed {
		t.Fatal("third take should be denied")
	}
	if third.RetryAfter <= 0 || third.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v", third.RetryAfter)
	}
	if !limiter.Take(ctx, "chat:10.0.0.2").Allowed {
		t.Fatal("other clients keep their own quota")
	}
}

func TestTakeNewWindowResets(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter := newLimiter(t, srv.Addr(), 1)
	now := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	if !limiter.Take(ctx, "ip-1").Allowed || limiter.Take(ctx, "ip-1").Allowed {
		t.Fatal("expected one request per window")
	}
	now = now.Add(time.Minute)
	if !limiter.Take(ctx, "ip-1").Allowed {
		t.Fatal("next window should allow again")
	}
	if n := len(srv.Keys()); n != 2 {
		t.Fatalf("expected one key per window, got %d", n)
	}
}

func TestTakeFailsClosed(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter := newLimiter(t, srv.Addr(), 1)
	srv.Close()
	d := limiter.Take(context.Background(), "ip-1")
	if d.Allowed {
		t.Fatal("limiter should fail closed on redis errors")
	}
	if d.RetryAfterSeconds() != 1 {
		t.Fatalf("retry after seconds = %d", d.RetryAfterSeconds())
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                      1,
		300 * time.Millisecond: 1,
		time.Second:            1,
		1500 * time.Millisecond: 2,
		time.Minute:            60,
	}
	for in, want := range cases {
		if got := (Decision{RetryAfter: in}).RetryAfterSeconds(); got != want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestNewFixedWindowLimiterValidates(t *testing.T) {
	if _, err := NewFixedWindowLimiter(Config{Limit: 1, Window: time.Second}); err == nil {
		t.Fatal("expected constructor error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(Config{Addr: "127.0.0.1:6379", Window: time.Second}); err == nil {
		t.Fatal("expected constructor error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(Config{Addr: "127.0.0.1:6379", Limit: 1}); err == nil {
		t.Fatal("expected constructor error for zero window")
	}
}
