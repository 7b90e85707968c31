package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// slidingWindowScript is a Lua script for sliding window rate limiting
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)

return 1
`)

// RedisLimiter shares attempt counts through redis. When redis cannot be
// reached it degrades to the in-memory fallback.
type RedisLimiter struct {
	client   redis.Scripter
	limit    int
	window   time.Duration
	fallback *MemoryLimiter
}

func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		fallback: NewMemoryLimiter(limit, window),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}

	fullKey := fmt.Sprintf("ratelimit:%s", key)
	allowed, err := slidingWindowScript.Run(
		ctx,
		l.client,
		[]string{fullKey},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
	).Int()
	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, using in-memory limiter")
		return l.fallback.Allow(ctx, key)
	}

	return allowed == 1
}

// PruneIdle prunes the in-memory fallback. Redis keys expire on their own.
func (l *RedisLimiter) PruneIdle(ctx context.Context) (int64, error) {
	return l.fallback.PruneIdle(ctx)
}
