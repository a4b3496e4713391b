package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:sw:"

// 古い記録の削除・件数確認・追加を1回の呼び出しで行う。
// 戻り値は {許可なら1, ウィンドウ内件数}。
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, count}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// RedisLimiter は Redis のソート済みセットで履歴を共有する実装です。
// 複数インスタンスで同じ枠を使いたい場合に利用します。
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	max    int
}

// NewRedisLimiter は RedisLimiter を作成します。接続確認に失敗した場合はエラーを返します。
func NewRedisLimiter(ctx context.Context, rdb *redis.Client, window time.Duration, max int) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLimiter{
		rdb:    rdb,
		window: window,
		max:    max,
	}, nil
}

// Allow は Limiter を実装します。
func (r *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	if key == "" {
		key = UnknownKey
	}

	values, err := slidingWindowScript.Run(ctx, r.rdb, []string{redisKeyPrefix + key},
		now.UnixMilli(),
		r.window.Milliseconds(),
		r.max,
		fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("sliding window script failed: %w", err)
	}
	if len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected script response: %v", values)
	}

	dec := Decision{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		Limit:   r.max,
	}
	if !dec.Allowed {
		dec.RetryAfter = r.window
	}
	return dec, nil
}
