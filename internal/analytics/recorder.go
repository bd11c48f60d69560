// Package analytics records one click event per redirect in the background.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/logger"
	"github.com/marcus7i/ulinks/internal/metrics"
)

const DefaultWriteTimeout = 10 * time.Second

type EventStore interface {
	Insert(ctx context.Context, event *internal.AnalyticsEvent) (int64, error)
}

type Enricher interface {
	Enrich(ctx context.Context, ip string) internal.IPLookup
}

// Recorder enriches and stores click events off the request path. Writes are
// best effort: at most once, never retried, failures only logged.
type Recorder struct {
	events   EventStore
	enricher Enricher
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewRecorder(events EventStore, enricher Enricher, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Recorder{events: events, enricher: enricher, timeout: timeout}
}

// Record returns immediately. The event is built from the captured fingerprint
// and written by a background goroutine that outlives the request.
func (r *Recorder) Record(ctx context.Context, link *internal.Link, info internal.ClientInfo) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		if _, err := r.Write(ctx, link, info); err != nil {
			metrics.AnalyticsWrites.WithLabelValues("error").Inc()
			log().Error().Err(err).Str("short_id", link.ShortID).Str("ip", info.IPAddress).Msg("failed to save analytics")
			return
		}
		metrics.AnalyticsWrites.WithLabelValues("ok").Inc()
	}()
}

// Write enriches and stores the event synchronously.
func (r *Recorder) Write(ctx context.Context, link *internal.Link, info internal.ClientInfo) (int64, error) {
	lookup := r.enricher.Enrich(ctx, info.IPAddress)

	// Country stays whatever the edge header said; the lookup country is kept
	// separately under IPData.
	if info.Country == "" {
		info.Country = internal.Unknown
	}

	event := &internal.AnalyticsEvent{
		LinkID:     link.ShortID,
		AccountID:  link.AccountID,
		ClientInfo: info,
		IPData:     lookup,
	}
	return r.events.Insert(ctx, event)
}

// Wait blocks until in-flight writes finish or ctx is done. Writes still running
// after that are abandoned.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func log() *zerolog.Logger {
	l := logger.With("analytics")
	return &l
}
