// Package ratelimit throttles provider calls per (owner, capability) so a
// single Project cannot exhaust a shared credential's quota.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/domain"
)

// TokenBucket implements a distributed token bucket rate limiter over
// Redis, atomically refilled and decremented by a single Lua script so
// concurrent orchestrator workers never race on the same bucket.
type TokenBucket struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewTokenBucket constructs a bucket with the given capacity/refill rate.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{client: client, capacity: capacity, refill: refillPerSecond, ttl: ttl}
}

// Allow consumes a single token for (ownerID, capability) if one is
// available, returning the remaining token count either way.
func (b *TokenBucket) Allow(ctx context.Context, ownerID string, capability domain.Capability) (bool, float64, error) {
	key := bucketKey(ownerID, capability)
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, nil
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return allowed, tokens, nil
}

func bucketKey(ownerID string, capability domain.Capability) string {
	return fmt.Sprintf("ratelimit:%s:%s", ownerID, capability)
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
