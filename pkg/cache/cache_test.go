package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Key   string    `json:"key"`
	Until time.Time `json:"until"`
}

func TestMemoryCache_ExpiryFollowsClock(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", entry{Key: "k", Until: now}, time.Minute))

	var got entry
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "k", got.Key)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
	assert.Zero(t, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	now = now.Add(time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "a")
	assert.True(t, ok)
}

func TestRedisCache_RoundTripWithPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisCacheFromClient(client, "finpulse:dedup")
	defer rc.Close()
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "crash:BTCUSDT", entry{Key: "crash:BTCUSDT"}, time.Hour))
	assert.True(t, mr.Exists("finpulse:dedup:crash:BTCUSDT"))

	var got entry
	require.NoError(t, rc.Get(ctx, "crash:BTCUSDT", &got))
	assert.Equal(t, "crash:BTCUSDT", got.Key)

	mr.FastForward(time.Hour)
	assert.ErrorIs(t, rc.Get(ctx, "crash:BTCUSDT", &got), ErrCacheMiss)

	require.NoError(t, rc.Set(ctx, "x", "y", 0))
	require.NoError(t, rc.Delete(ctx, "x"))
	ok, err := rc.Exists(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
