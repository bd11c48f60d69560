package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestGenerateShortID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 1000 {
		id := GenerateShortID()
		assert.Len(t, id, shortIDLength)
		seen[id] = struct{}{}
	}
	assert.Greater(t, len(seen), 990)
}

func TestLinksRepo_CreateNeverReusesExistingID(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	account, err := NewAccountsRepo(conn).Create(ctx, false)
	require.NoError(t, err)

	links := NewLinksRepo(conn)
	links.generateID = sequence("AAAAAAAA")
	first, err := links.Create(ctx, account.AccountID, "https://example.com/1")
	require.NoError(t, err)

	links.generateID = sequence("AAAAAAAA", "AAAAAAAA", "AAAAAAAA", "BBBBBBBB")
	second, err := links.Create(ctx, account.AccountID, "https://example.com/2")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAAAA", first.ShortID)
	assert.Equal(t, "BBBBBBBB", second.ShortID)
}

func TestLinksRepo_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	accounts := NewAccountsRepo(conn)
	links := NewLinksRepo(conn)

	owner, err := accounts.Create(ctx, false)
	require.NoError(t, err)
	stranger, err := accounts.Create(ctx, false)
	require.NoError(t, err)

	link, err := links.Create(ctx, owner.AccountID, "https://example.com")
	require.NoError(t, err)

	_, err = links.Get(ctx, stranger.AccountID, link.ShortID)
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	assert.ErrorIs(t, links.Update(ctx, stranger.AccountID, link.ShortID, "https://evil.example"), internal.ErrLinkNotFound)
	assert.ErrorIs(t, links.Delete(ctx, stranger.AccountID, link.ShortID), internal.ErrLinkNotFound)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, links.Update(ctx, owner.AccountID, link.ShortID, "https://example.org"))
	updated, err := links.Get(ctx, owner.AccountID, link.ShortID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", updated.TargetURL)
	assert.True(t, updated.LastModified.After(updated.CreatedAt))

	list, err := links.List(ctx, owner.AccountID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	count, err := links.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestLinksRepo_DeleteRemovesAnalytics(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	account, err := NewAccountsRepo(conn).Create(ctx, false)
	require.NoError(t, err)
	links := NewLinksRepo(conn)
	analytics := NewAnalyticsRepo(conn)

	keep, err := links.Create(ctx, account.AccountID, "https://example.com/keep")
	require.NoError(t, err)
	drop, err := links.Create(ctx, account.AccountID, "https://example.com/drop")
	require.NoError(t, err)

	_, err = analytics.Insert(ctx, newEvent(keep.ShortID, account.AccountID, "1.1.1.1", time.Now()))
	require.NoError(t, err)
	_, err = analytics.Insert(ctx, newEvent(drop.ShortID, account.AccountID, "2.2.2.2", time.Now()))
	require.NoError(t, err)

	require.NoError(t, links.Delete(ctx, account.AccountID, drop.ShortID))

	count, err := analytics.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
