package repo

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestStatisticsRepo_ReplaceKeepsSingleton(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	stats := NewStatisticsRepo(conn)

	got, err := stats.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := &internal.Stats{
		TotalLinks:  1,
		TotalClicks: 3,
		ChartData: internal.ChartData{
			IPVersions: []internal.StatItem{{ID: internal.IPv4, Count: 2}, {ID: internal.IPv6, Count: 1}},
		},
		LastUpdated: time.Now(),
	}
	require.NoError(t, stats.Replace(ctx, first))

	second := &internal.Stats{TotalLinks: 7, TotalClicks: 0, LastUpdated: time.Now()}
	require.NoError(t, stats.Replace(ctx, second))

	got, err = stats.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 7, got.TotalLinks)
	assert.Zero(t, got.TotalClicks)
	assert.Empty(t, got.ChartData.IPVersions, "replace must not merge with the previous summary")

	rows, err := goqu.New(dialect, conn).From(statisticsTable).CountContext(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
}

func TestIPLookupsRepo_Upsert(t *testing.T) {
	ctx := context.Background()
	lookups := NewIPLookupsRepo(newTestDB(t))

	got, err := lookups.Get(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Nil(t, got)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, lookups.Upsert(ctx, &internal.IPLookup{
		IPAddress: "8.8.8.8", IPVersion: internal.IPv4, ISP: "Old ISP", Country: "US", Timestamp: old,
	}))
	require.NoError(t, lookups.Upsert(ctx, &internal.IPLookup{
		IPAddress: "8.8.8.8", IPVersion: internal.IPv4, ISP: "Google LLC", Country: "United States", Timestamp: time.Now(),
	}))

	got, err = lookups.Get(ctx, "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Google LLC", got.ISP)
	assert.True(t, got.Timestamp.After(old))
}
