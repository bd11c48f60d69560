// Package stats computes the site-wide summary from the analytics log and keeps
// it as a single cached document.
package stats

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/logger"
	"github.com/marcus7i/ulinks/internal/metrics"
)

const (
	DefaultTTL = 5 * time.Minute

	recomputeTimeout = 30 * time.Second
)

type LinkCounter interface {
	Count(ctx context.Context) (int64, error)
}

type EventAggregator interface {
	Count(ctx context.Context, where goqu.Ex) (int64, error)
	GroupCount(ctx context.Context, column string) ([]internal.StatItem, error)
}

type SummaryStore interface {
	Get(ctx context.Context) (*internal.Stats, error)
	Replace(ctx context.Context, stats *internal.Stats) error
}

type Config struct {
	TTL time.Duration
	// MergePlatforms normalizes platform labels before counting so cosmetic
	// variants share one bucket. When false, groups are counted by raw value
	// and only relabeled afterwards.
	MergePlatforms bool
}

type Engine struct {
	links   LinkCounter
	events  EventAggregator
	summary SummaryStore
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
}

func NewEngine(links LinkCounter, events EventAggregator, summary SummaryStore, cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Engine{links: links, events: events, summary: summary, cfg: cfg, now: time.Now}
}

// GetCached returns the stored summary unmodified, or nil if none exists yet.
func (e *Engine) GetCached(ctx context.Context) (*internal.Stats, error) {
	return e.summary.Get(ctx)
}

// IsStale reports whether s must be recomputed before being served.
func (e *Engine) IsStale(s *internal.Stats) bool {
	return s == nil || s.LastUpdated.IsZero() || e.now().Sub(s.LastUpdated) > e.cfg.TTL
}

// Current serves the cached summary, recomputing it first when stale. If the
// recompute fails the stale summary is served instead; only when there is no
// summary at all does the error reach the caller.
func (e *Engine) Current(ctx context.Context) (*internal.Stats, error) {
	cached, err := e.GetCached(ctx)
	if err != nil {
		log().Warn().Err(err).Msg("failed to read cached statistics")
	}
	if cached != nil && !e.IsStale(cached) {
		return cached, nil
	}

	fresh, err := e.Recompute(ctx)
	if err != nil {
		if cached != nil {
			log().Warn().Err(err).Time("last_updated", cached.LastUpdated).Msg("statistics recompute failed, serving stale summary")
			return cached, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Recompute rebuilds the summary from scratch and replaces the stored one.
// Concurrent callers share a single computation.
func (e *Engine) Recompute(ctx context.Context) (*internal.Stats, error) {
	v, err, shared := e.group.Do("recompute", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recomputeTimeout)
		defer cancel()
		return e.recompute(ctx)
	})
	if shared {
		log().Debug().Msg("joined in-flight statistics recompute")
	}
	if err != nil {
		return nil, err
	}
	return v.(*internal.Stats), nil
}

func (e *Engine) recompute(ctx context.Context) (_ *internal.Stats, err error) {
	start := time.Now()
	defer func() {
		metrics.StatsRecomputeDuration.Observe(time.Since(start).Seconds())
		metrics.StatsRecomputes.WithLabelValues(lo.Ternary(err == nil, "ok", "error")).Inc()
	}()

	totalLinks, err := e.links.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalClicks, err := e.events.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	ipv6, err := e.events.Count(ctx, goqu.Ex{"ip_version": internal.IPv6})
	if err != nil {
		return nil, err
	}

	ipVersions := []internal.StatItem{
		{ID: internal.IPv4, Count: totalClicks - ipv6},
		{ID: internal.IPv6, Count: ipv6},
	}
	sortByCount(ipVersions)

	platforms, err := e.events.GroupCount(ctx, "platform")
	if err != nil {
		return nil, err
	}
	countries, err := e.events.GroupCount(ctx, "country")
	if err != nil {
		return nil, err
	}
	isps, err := e.events.GroupCount(ctx, "isp")
	if err != nil {
		return nil, err
	}

	stats := &internal.Stats{
		TotalLinks:  totalLinks,
		TotalClicks: totalClicks,
		ChartData: internal.ChartData{
			IPVersions:   ipVersions,
			OSStats:      e.platformStats(platforms),
			CountryStats: countries,
			ISPStats:     isps,
		},
		LastUpdated: e.now(),
	}
	if err := e.summary.Replace(ctx, stats); err != nil {
		return nil, err
	}

	log().Info().
		Int64("total_links", totalLinks).
		Int64("total_clicks", totalClicks).
		Dur("took", time.Since(start)).
		Msg("statistics recomputed")
	return stats, nil
}

func (e *Engine) platformStats(items []internal.StatItem) []internal.StatItem {
	if !e.cfg.MergePlatforms {
		return lo.Map(items, func(item internal.StatItem, _ int) internal.StatItem {
			return internal.StatItem{ID: FormatPlatform(item.ID), Count: item.Count}
		})
	}

	merged := make(map[string]int64, len(items))
	for _, item := range items {
		merged[FormatPlatform(item.ID)] += item.Count
	}
	out := lo.MapToSlice(merged, func(id string, count int64) internal.StatItem {
		return internal.StatItem{ID: id, Count: count}
	})
	sortByCount(out)
	return out
}

// FormatPlatform strips the cosmetic noise browsers put around OS names: quotes
// from client hints, the "CPU " prefix and " like Mac OS X" suffix of iOS agents.
func FormatPlatform(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, "CPU ", "")
	s = strings.ReplaceAll(s, " like Mac OS X", "")
	return s
}

func sortByCount(items []internal.StatItem) {
	slices.SortStableFunc(items, func(a, b internal.StatItem) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func log() *zerolog.Logger {
	l := logger.With("stats")
	return &l
}
