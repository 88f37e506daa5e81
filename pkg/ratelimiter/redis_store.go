package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript runs the same refill-then-take step as MemoryStore atomically
// inside Redis. Times are unix milliseconds.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local want = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refill')
local tokens = tonumber(state[1])
local refill = tonumber(state[2])
if tokens == nil or refill == nil then
  tokens = capacity
  refill = now
end

local elapsed = math.floor((now - refill) / interval)
if elapsed > 0 then
  tokens = math.min(tokens + elapsed * rate, capacity)
  refill = now
end

local remaining
if tokens < want then
  remaining = tokens - want
else
  tokens = tokens - want
  remaining = tokens
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refill', refill)
redis.call('PEXPIRE', KEYS[1], (math.floor(capacity / rate) + 1) * interval * 2)
return {remaining, refill + interval}
`)

// RedisStore keeps buckets in Redis hashes under a key prefix.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a store. An empty prefix defaults to "ratelimit:".
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (rs *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	res, err := consumeScript.Run(ctx, rs.client, []string{rs.prefix + key},
		config.Capacity,
		config.RefillRate,
		config.RefillInterval.Milliseconds(),
		tokens,
		time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (rs *RedisStore) Reset(ctx context.Context, key string) error {
	if cmd, ok := rs.client.(redis.Cmdable); ok {
		if err := cmd.Del(ctx, rs.prefix+key).Err(); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
		return nil
	}
	if err := rs.client.Eval(ctx, "return redis.call('DEL', KEYS[1])", []string{rs.prefix + key}).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
