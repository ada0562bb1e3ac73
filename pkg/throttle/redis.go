// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medienhaus/ldapauth/pkg/logger"
)

// RedisLimiter shares attempt budgets between instances using GCRA.
//
// GCRA tracks a "theoretical arrival time" (TAT) per key. Each attempt
// moves the TAT forward by one emission interval; attempts are allowed
// while the TAT stays within burst intervals of now. The check runs as a
// Lua script so concurrent instances see a consistent budget.
type RedisLimiter struct {
	client *redis.Client
	config Config
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(config Config) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisLimiterWithClient(client, config), nil
}

// NewRedisLimiterWithClient creates a limiter with an existing Redis client.
func NewRedisLimiterWithClient(client *redis.Client, config Config) *RedisLimiter {
	return &RedisLimiter{client: client, config: config}
}

// gcraScript returns {allowed (1 or 0), remaining attempts}.
var gcraScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])        -- microseconds
local burst = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])       -- attempts per second
local ttl = tonumber(ARGV[4])        -- seconds

local emission_interval = 1000000 / rate
local burst_offset = burst * emission_interval

local tat = redis.call("GET", key)
if tat then
    tat = tonumber(tat)
else
    tat = now
end
if tat < now then
    tat = now
end

local new_tat = tat + emission_interval
local allow_at = now + burst_offset
if new_tat > allow_at then
    local remaining = math.max(0, math.floor((allow_at - tat) / emission_interval))
    return {0, remaining}
end

redis.call("SET", key, new_tat, "EX", ttl)

local remaining = math.max(0, math.floor((allow_at - new_tat) / emission_interval))
return {1, remaining}
`)

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := r.config.KeyPrefix + key
	ttlSeconds := int64(r.config.KeyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 3600
	}

	result, err := gcraScript.Run(ctx, r.client, []string{fullKey},
		time.Now().UnixMicro(), r.config.Burst, r.config.RPS, ttlSeconds,
	).Int64Slice()
	if err != nil {
		BackendErrorsTotal.WithLabelValues(backendRedis).Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("redis throttle check failed")
		if r.config.FailOpen {
			record(backendRedis, true)
			return true, nil
		}
		return false, err
	}

	allowed := result[0] == 1
	record(backendRedis, allowed)
	return allowed, nil
}

// Reset clears the attempt history for key.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.KeyPrefix+key).Err()
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
