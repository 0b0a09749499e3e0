package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"otpgate/internal/ratelimit/models"
	"otpgate/pkg/platform/sentinel"
)

const keyPrefix = "ratelimit:bucket:"

// slidingWindowScript keeps a sorted set of request timestamps per key and
// admits a request only while the set holds fewer than limit entries. The
// script runs atomically, so concurrent checks across instances cannot
// overshoot the budget.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
	redis.call('ZADD', key, now, now .. '-' .. redis.call('INCR', key .. ':seq'))
	redis.call('EXPIRE', key, ttl)
	redis.call('EXPIRE', key .. ':seq', ttl)
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {1, count + 1, tonumber(oldest[2])}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, count, tonumber(oldest[2])}
`)

// RedisStore is a sliding window bucket store shared across instances.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Allow records one request for key and reports whether the budget held.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixMilli()
	ttl := int(window.Seconds()) + 1

	raw, err := slidingWindowScript.Run(ctx, s.client, []string{keyPrefix + key},
		now.UnixMilli(), windowStart, limit, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("sliding window check for %q: %w", key, sentinel.ErrUnavailable)
	}

	allowed, count, oldestMilli, err := parseWindowReply(raw)
	if err != nil {
		return nil, fmt.Errorf("sliding window check for %q: %v: %w", key, err, sentinel.ErrUnavailable)
	}

	resetAt := now.Add(window)
	if oldestMilli > 0 {
		resetAt = time.UnixMilli(oldestMilli).Add(window)
	}

	res := &models.Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		res.RetryAfter = res.RetryAfterSeconds(now)
	}
	return res, nil
}

// parseWindowReply decodes the {allowed, count, oldest} triple the script
// returns. A reply that does not match that shape is an error, never a panic.
func parseWindowReply(raw interface{}) (allowed bool, count int, oldestMilli int64, err error) {
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script reply %T", raw)
	}
	flag, ok := vals[0].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("unexpected admit flag %T", vals[0])
	}
	n, ok := vals[1].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("unexpected window count %T", vals[1])
	}
	oldestMilli, _ = vals[2].(int64)
	return flag == 1, int(n), oldestMilli, nil
}

// Reset clears the counter for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key, keyPrefix+key+":seq").Err(); err != nil {
		return fmt.Errorf("reset bucket %q: %w", key, sentinel.ErrUnavailable)
	}
	return nil
}

// CurrentCount returns the number of requests inside the window for a key.
func (s *RedisStore) CurrentCount(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("count bucket %q: %w", key, sentinel.ErrUnavailable)
	}
	return int(n), nil
}
