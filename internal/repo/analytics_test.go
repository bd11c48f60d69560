package repo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestAnalyticsRepo(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	account, err := NewAccountsRepo(conn).Create(ctx, false)
	require.NoError(t, err)
	link, err := NewLinksRepo(conn).Create(ctx, account.AccountID, "https://example.com")
	require.NoError(t, err)
	analytics := NewAnalyticsRepo(conn)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ips := []string{"1.1.1.1", "2.2.2.2", "2001:db8::1", "3.3.3.3", "2001:db8::2"}
	ids := make([]int64, len(ips))
	for i, ip := range ips {
		ids[i], err = analytics.Insert(ctx, newEvent(link.ShortID, account.AccountID, ip, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	t.Run("List pages newest first", func(t *testing.T) {
		events, total, err := analytics.List(ctx, AnalyticsQuery{
			AccountID: account.AccountID,
			LinkID:    link.ShortID,
			Page:      Page{Page: 1, Limit: 2},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, events, 2)
		assert.Equal(t, "2001:db8::2", events[0].IPAddress)
		assert.Equal(t, internal.IPv6, events[0].IPVersion)
		assert.Equal(t, "Example ISP", events[0].IPData.ISP)
	})

	t.Run("List with date range", func(t *testing.T) {
		start := base.Add(time.Hour)
		end := base.Add(3 * time.Hour)
		events, total, err := analytics.List(ctx, AnalyticsQuery{
			AccountID: account.AccountID,
			LinkID:    link.ShortID,
			StartDate: &start,
			EndDate:   &end,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, events, 3)
		assert.Equal(t, ids[3], events[0].ID)
		assert.Equal(t, ids[1], events[2].ID)
	})

	t.Run("List all ignores the date range", func(t *testing.T) {
		start := base.Add(time.Hour)
		end := base.Add(time.Hour)
		events, total, err := analytics.List(ctx, AnalyticsQuery{
			AccountID: account.AccountID,
			LinkID:    link.ShortID,
			StartDate: &start,
			EndDate:   &end,
			All:       true,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Len(t, events, 5)
	})

	t.Run("List all ignores paging", func(t *testing.T) {
		events, _, err := analytics.List(ctx, AnalyticsQuery{
			AccountID: account.AccountID,
			LinkID:    link.ShortID,
			All:       true,
			Page:      Page{Limit: 1},
		})
		require.NoError(t, err)
		assert.Len(t, events, 5)
	})

	t.Run("List is scoped to owner", func(t *testing.T) {
		events, total, err := analytics.List(ctx, AnalyticsQuery{AccountID: "other", LinkID: link.ShortID})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, events)
	})

	t.Run("Count and GroupCount", func(t *testing.T) {
		ipv6, err := analytics.Count(ctx, goqu.Ex{"ip_version": internal.IPv6})
		require.NoError(t, err)
		assert.EqualValues(t, 2, ipv6)

		items, err := analytics.GroupCount(ctx, "ip_version")
		require.NoError(t, err)
		assert.Equal(t, []internal.StatItem{{ID: internal.IPv4, Count: 3}, {ID: internal.IPv6, Count: 2}}, items)
	})

	t.Run("Delete single event", func(t *testing.T) {
		assert.ErrorIs(t, analytics.Delete(ctx, account.AccountID, link.ShortID, "not-an-id"), internal.ErrInvalidObjectID)
		assert.ErrorIs(t, analytics.Delete(ctx, "other", link.ShortID, strconv.FormatInt(ids[0], 10)), internal.ErrAnalyticsNotFound)

		require.NoError(t, analytics.Delete(ctx, account.AccountID, link.ShortID, strconv.FormatInt(ids[0], 10)))
		count, err := analytics.Count(ctx, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 4, count)
	})

	t.Run("DeleteForLink then nothing left", func(t *testing.T) {
		require.NoError(t, analytics.DeleteForLink(ctx, account.AccountID, link.ShortID))
		assert.ErrorIs(t, analytics.DeleteForLink(ctx, account.AccountID, link.ShortID), internal.ErrAnalyticsNotFound)

		n, err := analytics.DeleteForAccount(ctx, account.AccountID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
