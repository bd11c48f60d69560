// Package geo enriches client IP addresses with ISP and country data from an
// external lookup service, behind a freshness-bounded cache.
package geo

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/metrics"
)

// DefaultFreshness is how long a cached lookup is trusted.
const DefaultFreshness = 7 * 24 * time.Hour

// Fetcher resolves an address against the upstream lookup service.
type Fetcher interface {
	Fetch(ctx context.Context, ip string) (*internal.IPLookup, error)
}

// Cache stores lookups by address. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, ip string) (*internal.IPLookup, error)
	Upsert(ctx context.Context, lookup *internal.IPLookup) error
}

type Enricher struct {
	cache     Cache
	fetcher   Fetcher
	freshness time.Duration
	limiter   *rate.Limiter
	now       func() time.Time
}

type Option func(*Enricher)

func WithFreshness(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.freshness = d
		}
	}
}

// WithRateLimit caps outbound lookups. Lookups over the limit get the fallback
// entry instead of waiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Enricher) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

func NewEnricher(cache Cache, fetcher Fetcher, opts ...Option) *Enricher {
	e := &Enricher{
		cache:     cache,
		fetcher:   fetcher,
		freshness: DefaultFreshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich never fails. A fresh cache entry is returned as is; otherwise the
// upstream is asked and the answer cached. Any upstream failure yields a
// fallback entry that is not cached, so the next click retries.
func (e *Enricher) Enrich(ctx context.Context, ip string) internal.IPLookup {
	logger := log.With().Str("ip", ip).Logger()

	if net.ParseIP(ip) == nil {
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return e.fallback(ip)
	}

	cached, err := e.cache.Get(ctx, ip)
	if err != nil {
		logger.Warn().Err(err).Msg("ip lookup cache read failed")
	}
	if cached != nil && cached.Fresh(e.now(), e.freshness) {
		metrics.GeoLookups.WithLabelValues("hit").Inc()
		return *cached
	}

	if e.limiter != nil && !e.limiter.Allow() {
		metrics.GeoLookups.WithLabelValues("throttled").Inc()
		logger.Debug().Msg("ip lookup throttled")
		return e.fallback(ip)
	}

	lookup, err := e.fetcher.Fetch(ctx, ip)
	if err != nil {
		metrics.GeoLookups.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("ip lookup failed, using fallback")
		return e.fallback(ip)
	}
	metrics.GeoLookups.WithLabelValues("miss").Inc()

	lookup.IPAddress = ip
	lookup.IPVersion = internal.IPVersionOf(ip)
	lookup.Timestamp = e.now()
	if err := e.cache.Upsert(ctx, lookup); err != nil {
		logger.Warn().Err(err).Msg("failed to cache ip lookup")
	}
	return *lookup
}

func (e *Enricher) fallback(ip string) internal.IPLookup {
	return internal.IPLookup{
		IPAddress: ip,
		IPVersion: internal.IPVersionOf(ip),
		ISP:       internal.Unknown,
		Country:   internal.Unknown,
		Timestamp: e.now(),
	}
}
