// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ulinks"

var (
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redirects_total",
		Help:      "Short link redirects by result (found, not_found, error).",
	}, []string{"result"})

	AnalyticsWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_writes_total",
		Help:      "Background analytics writes by result.",
	}, []string{"result"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geo_lookups_total",
		Help:      "IP enrichment lookups by result (hit, miss, error, skipped).",
	}, []string{"result"})

	StatsRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stats_recomputes_total",
		Help:      "Statistics recomputations by result.",
	}, []string{"result"})

	StatsRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stats_recompute_duration_seconds",
		Help:      "Time spent recomputing the statistics summary.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	SessionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_checks_total",
		Help:      "Session validations against the store by result (valid, invalid, error).",
	}, []string{"result"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Token re-mints by result.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
