package geo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/db"
	"github.com/marcus7i/ulinks/internal/repo"
)

type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, ip string) (*internal.IPLookup, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &internal.IPLookup{IPAddress: ip, ISP: "Example ISP", Country: "Germany"}, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]internal.IPLookup
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]internal.IPLookup)}
}

func (c *memoryCache) Get(_ context.Context, ip string) (*internal.IPLookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.entries[ip]; ok {
		return &l, nil
	}
	return nil, nil
}

func (c *memoryCache) Upsert(_ context.Context, l *internal.IPLookup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[l.IPAddress] = *l
	return nil
}

func TestEnricher_CachesWithinFreshnessWindow(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{}
	cache := newMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	e := NewEnricher(cache, fetcher)
	e.now = func() time.Time { return now }

	first := e.Enrich(ctx, "8.8.8.8")
	assert.Equal(t, "Example ISP", first.ISP)
	assert.Equal(t, internal.IPv4, first.IPVersion)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	now = now.Add(DefaultFreshness - time.Minute)
	second := e.Enrich(ctx, "8.8.8.8")
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, fetcher.calls.Load(), "second lookup inside the window must hit the cache")

	now = now.Add(2 * time.Minute)
	third := e.Enrich(ctx, "8.8.8.8")
	assert.EqualValues(t, 2, fetcher.calls.Load(), "stale entry triggers exactly one refresh")
	assert.Equal(t, now, third.Timestamp)

	e.Enrich(ctx, "8.8.8.8")
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestEnricher_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	cache := newMemoryCache()

	e := NewEnricher(cache, fetcher)

	got := e.Enrich(ctx, "2001:db8::1")
	assert.Equal(t, internal.Unknown, got.ISP)
	assert.Equal(t, internal.Unknown, got.Country)
	assert.Equal(t, internal.IPv6, got.IPVersion)

	cached, err := cache.Get(ctx, "2001:db8::1")
	require.NoError(t, err)
	assert.Nil(t, cached)

	fetcher.err = nil
	got = e.Enrich(ctx, "2001:db8::1")
	assert.Equal(t, "Example ISP", got.ISP)
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestEnricher_SkipsUnparsableAddress(t *testing.T) {
	fetcher := &fakeFetcher{}
	e := NewEnricher(newMemoryCache(), fetcher)

	got := e.Enrich(context.Background(), internal.Unknown)
	assert.Equal(t, internal.Unknown, got.ISP)
	assert.Zero(t, fetcher.calls.Load())
}

func TestEnricher_RateLimit(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{}
	e := NewEnricher(newMemoryCache(), fetcher, WithRateLimit(0.001, 1))

	assert.Equal(t, "Example ISP", e.Enrich(ctx, "1.1.1.1").ISP)
	assert.Equal(t, internal.Unknown, e.Enrich(ctx, "2.2.2.2").ISP)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	assert.Equal(t, "Example ISP", e.Enrich(ctx, "1.1.1.1").ISP, "cache hits are not throttled")
}

func TestEnricher_SQLiteCache(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "geo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	fetcher := &fakeFetcher{}
	e := NewEnricher(repo.NewIPLookupsRepo(conn), fetcher)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Enrich(ctx, "9.9.9.9")
		}()
	}
	wg.Wait()

	got := e.Enrich(ctx, "9.9.9.9")
	assert.Equal(t, "Example ISP", got.ISP)
	assert.LessOrEqual(t, fetcher.calls.Load(), int32(5))
}
