package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sendLimitLuaScript atomically checks and increments the current-second
// send counter. GET-check-INCR as separate commands would race across
// worker instances.
const sendLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, 2)
end
return 1
`

// RateLimiter caps outbound sends per second across all worker instances
// using an atomic Redis Lua script. A nil Redis client disables limiting.
type RateLimiter struct {
	redis     *redis.Client
	script    *redis.Script
	perSecond int
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing perSecond sends per second.
func NewRateLimiter(client *redis.Client, perSecond int) *RateLimiter {
	return &RateLimiter{
		redis:     client,
		script:    redis.NewScript(sendLimitLuaScript),
		perSecond: perSecond,
		now:       time.Now,
	}
}

// Allow reports whether one send may proceed right now.
func (rl *RateLimiter) Allow(ctx context.Context) (bool, error) {
	if rl.redis == nil || rl.perSecond <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("dispatch:rate:%d", rl.now().Unix())
	res, err := rl.script.Run(ctx, rl.redis, []string{key}, rl.perSecond).Int()
	if err != nil {
		// Redis being down must not halt sending.
		return true, nil
	}
	return res == 1, nil
}

// Wait blocks until a send slot is available or the context is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		ok, err := rl.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
