package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

type memoryEvents struct {
	mu     sync.Mutex
	events []*internal.AnalyticsEvent
	err    error
}

func (m *memoryEvents) Insert(_ context.Context, e *internal.AnalyticsEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.events = append(m.events, e)
	return int64(len(m.events)), nil
}

func (m *memoryEvents) all() []*internal.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*internal.AnalyticsEvent(nil), m.events...)
}

type slowEnricher struct {
	delay time.Duration
}

func (s slowEnricher) Enrich(ctx context.Context, ip string) internal.IPLookup {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return internal.IPLookup{IPAddress: ip, IPVersion: internal.IPVersionOf(ip), ISP: "Slow ISP", Country: "Iceland"}
}

var link = &internal.Link{ShortID: "abcd1234", AccountID: "1111222233334444", TargetURL: "https://example.com"}

func TestRecorder_RecordDoesNotBlock(t *testing.T) {
	events := &memoryEvents{}
	r := NewRecorder(events, slowEnricher{delay: 300 * time.Millisecond}, time.Second)

	start := time.Now()
	r.Record(context.Background(), link, internal.ClientInfo{IPAddress: "1.1.1.1", Country: internal.Unknown})
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, events.all())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, link.ShortID, got[0].LinkID)
	assert.Equal(t, link.AccountID, got[0].AccountID)
	assert.Equal(t, internal.Unknown, got[0].Country, "without the edge header the country stays unknown")
	assert.Equal(t, "Iceland", got[0].IPData.Country)
	assert.Equal(t, "Slow ISP", got[0].IPData.ISP)
}

func TestRecorder_SurvivesRequestCancellation(t *testing.T) {
	events := &memoryEvents{}
	r := NewRecorder(events, slowEnricher{delay: 50 * time.Millisecond}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	r.Record(ctx, link, internal.ClientInfo{IPAddress: "1.1.1.1", Country: "FR"})
	cancel()

	require.NoError(t, r.Wait(context.Background()))
	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, "FR", got[0].Country)
	assert.Equal(t, "Iceland", got[0].IPData.Country)
}

func TestRecorder_WriteFailureIsSwallowed(t *testing.T) {
	events := &memoryEvents{err: errors.New("disk full")}
	r := NewRecorder(events, slowEnricher{}, time.Second)

	r.Record(context.Background(), link, internal.ClientInfo{IPAddress: "1.1.1.1"})
	require.NoError(t, r.Wait(context.Background()))
	assert.Empty(t, events.all())
}

func TestRecorder_WaitIsBounded(t *testing.T) {
	r := NewRecorder(&memoryEvents{}, slowEnricher{delay: time.Second}, 5*time.Second)
	r.Record(context.Background(), link, internal.ClientInfo{IPAddress: "1.1.1.1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestRecorder_WriteKeepsEdgeCountry(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", internal.Unknown},
		{internal.Unknown, internal.Unknown},
		{"DE", "DE"},
	}
	for _, tt := range tests {
		t.Run("header "+tt.header, func(t *testing.T) {
			events := &memoryEvents{}
			r := NewRecorder(events, slowEnricher{}, time.Second)

			_, err := r.Write(context.Background(), link, internal.ClientInfo{IPAddress: "1.1.1.1", Country: tt.header})
			require.NoError(t, err)

			got := events.all()
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Country)
			assert.Equal(t, "Iceland", got[0].IPData.Country)
		})
	}
}
