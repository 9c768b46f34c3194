package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window semantics: the TTL is set only on the first hit in the window,
// and the count and remaining TTL come back from the same script call.
const hitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// RedisStore shares counters across processes through Redis.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. Keys are written as prefix:rl:<key>.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "pa"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{redis: client, prefix: prefix, now: now}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, limit int) (Verdict, error) {
	res, err := hitLua.Run(ctx, s.redis, []string{s.prefix + ":rl:" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 2 {
		return Verdict{}, fmt.Errorf("%w: unexpected script reply", ErrBackendUnavailable)
	}

	count := int(res[0])
	ttl := time.Duration(res[1]) * time.Millisecond
	v := Verdict{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining(limit, count),
		ResetAt:   s.now().Add(ttl),
	}
	if !v.Allowed {
		v.RetryAfter = ttl
	}
	return v, nil
}
