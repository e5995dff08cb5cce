package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LimitPolicy is a token bucket: RPS refill rate and Burst capacity.
type LimitPolicy struct {
	RPS   float64
	Burst int
}

// LimiterStore holds one token bucket per client key.
type LimiterStore interface {
	Allow(ctx context.Context, key string, policy LimitPolicy) (bool, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiterStore keeps buckets in process. Idle buckets are swept on
// access after visitorTTL.
type MemoryLimiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

const visitorTTL = 3 * time.Minute

// NewMemoryLimiterStore returns an empty in-process store.
func NewMemoryLimiterStore() *MemoryLimiterStore {
	return &MemoryLimiterStore{visitors: make(map[string]*visitor), now: time.Now}
}

func (s *MemoryLimiterStore) Allow(_ context.Context, key string, policy LimitPolicy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > time.Minute {
		for k, v := range s.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(s.visitors, k)
			}
		}
		s.lastSweep = now
	}

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(policy.RPS), policy.Burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// tokenBucketScript refills and consumes atomically.
// KEYS[1] bucket key; ARGV rate, capacity, cost, now (unix seconds, fractional).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 180)
return {allowed, tostring(tokens)}
`)

// RedisLimiterStore shares buckets between API replicas.
type RedisLimiterStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiterStore connects lazily to addr.
func NewRedisLimiterStore(addr string) *RedisLimiterStore {
	return NewRedisLimiterStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

// NewRedisLimiterStoreWithClient uses an existing client.
func NewRedisLimiterStoreWithClient(c redis.Scripter) *RedisLimiterStore {
	return &RedisLimiterStore{client: c, prefix: "landguard:ratelimit:", now: time.Now}
}

func (s *RedisLimiterStore) Allow(ctx context.Context, key string, policy LimitPolicy) (bool, error) {
	rps := policy.RPS
	if rps <= 0 {
		rps = 1
	}
	now := float64(s.now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key}, rps, policy.Burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected reply %v", res)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}
