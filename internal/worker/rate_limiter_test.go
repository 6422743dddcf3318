package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 3)
	// Pin the window so the test cannot straddle a second boundary.
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "send %d should be allowed", i+1)
	}

	ok, err := rl.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "send over the per-second limit must be denied")
}

func TestRateLimiter_NilClientAlwaysAllows(t *testing.T) {
	rl := NewRateLimiter(nil, 1)
	for i := 0; i < 10; i++ {
		ok, err := rl.Allow(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 0)
	ok, err := rl.Allow(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 1)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, rl.Wait(ctx))

	// Limit exhausted; a cancelled context unblocks the wait.
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}
