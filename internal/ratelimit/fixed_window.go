// Package ratelimit throttles conversation turns per client across planner replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript counts a hit and returns {count, pttl}. The expiry is only set
// by the first hit so the window does not slide.
var takeScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

const (
	defaultPrefix = "hotelplan:ratelimit"
	redisTimeout  = 2 * time.Second
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Config describes a Redis-backed fixed window.
type Config struct {
	Addr     string
	Password string
	Prefix   string
	Limit    int
	Window   time.Duration
}

// FixedWindowLimiter allows Limit hits per key in each Window.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFixedWindowLimiter(cfg Config) (*FixedWindowLimiter, error) {
	if cfg.Limit <= 0 || cfg.Window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		prefix: prefix,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}, nil
}

// windowKey buckets key by window start so replicas agree on the boundary.
func (l *FixedWindowLimiter) windowKey(key string) string {
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	slot := l.now().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}

// Take spends one hit for key. Redis failures deny the request.
func (l *FixedWindowLimiter) Take(ctx context.Context, key string) Decision {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	res, err := takeScript.Run(ctx, l.client, []string{l.windowKey(key)}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		return Decision{RetryAfter: time.Second}
	}
	count, pttl := res[0], res[1]
	retry := time.Duration(pttl) * time.Millisecond
	if pttl < 0 {
		retry = l.window
	}
	remaining := int64(l.limit) - count
	if remaining < 0 {
		return Decision{RetryAfter: retry}
	}
	return Decision{Allowed: true, Remaining: int(remaining), RetryAfter: retry}
}

func (l *FixedWindowLimiter) Close() error {
	return l.client.Close()
}
