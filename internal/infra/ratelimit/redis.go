package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

// redisLimiter keeps one fixed-window counter per key in Redis so every
// pipeline replica draws from the same budget.
type redisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// The counter increment and the window TTL stamp must be atomic: split across
// two commands, a client crashing in between would leave a key that never
// expires. The script returns the hit count and the remaining window in one
// round trip.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (domain.RateLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisLimiter{client: client, now: now}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	reply, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	hits, ttlMillis, err := decodeScriptReply(reply)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	decision := domain.RateLimitDecision{
		Allowed: hits <= int64(limit),
		Limit:   limit,
		ResetAt: r.now(),
	}
	if remaining := limit - int(hits); remaining > 0 {
		decision.Remaining = remaining
	}
	if ttlMillis > 0 {
		decision.ResetAt = decision.ResetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	return decision, nil
}

// decodeScriptReply unpacks the {hits, pttl} pair. A key without a TTL
// reports a non-positive pttl, which callers treat as an already-closed
// window.
func decodeScriptReply(reply any) (hits, ttlMillis int64, err error) {
	pair, ok := reply.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("redis rate limit: malformed script reply %T", reply)
	}
	hits, ok = pair[0].(int64)
	if !ok {
		return 0, 0, errors.New("redis rate limit: non-integer hit count")
	}
	ttlMillis, _ = pair[1].(int64)
	return hits, ttlMillis, nil
}
