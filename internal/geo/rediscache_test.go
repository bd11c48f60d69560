package geo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	ctx := context.Background()
	cache, err := NewRedisCache(ctx, RedisConfig{URL: url, KeyPrefix: "ulinks-test:" + t.Name() + ":", TTL: time.Minute})
	if err != nil {
		t.Skipf("skipping redis cache tests: %v", err)
		return
	}
	t.Cleanup(func() { cache.Close() })

	got, err := cache.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, cache.Upsert(ctx, &internal.IPLookup{
		IPAddress: "203.0.113.9", IPVersion: internal.IPv4, ISP: "Test Net", Country: "Nowhere", Timestamp: now,
	}))
	t.Cleanup(func() { cache.client.Del(context.Background(), cache.key("203.0.113.9")) })

	got, err = cache.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Test Net", got.ISP)
	assert.True(t, now.Equal(got.Timestamp))

	ttl, err := cache.client.TTL(ctx, cache.key("203.0.113.9")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
