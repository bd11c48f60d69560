package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

type analyticsRow struct {
	ID              int64  `db:"id" goqu:"skipinsert,skipupdate"`
	LinkID          string `db:"link_id"`
	AccountID       string `db:"account_id"`
	IPAddress       string `db:"ip_address"`
	IPVersion       string `db:"ip_version"`
	UserAgent       string `db:"user_agent"`
	Platform        string `db:"platform"`
	Browser         string `db:"browser"`
	Version         string `db:"version"`
	Language        string `db:"language"`
	Referrer        string `db:"referrer"`
	Timestamp       Date   `db:"timestamp"`
	RemotePort      string `db:"remote_port"`
	Accept          string `db:"accept"`
	AcceptLanguage  string `db:"accept_language"`
	AcceptEncoding  string `db:"accept_encoding"`
	Country         string `db:"country"`
	ISP             string `db:"isp"`
	LookupCountry   string `db:"lookup_country"`
	LookupTimestamp Date   `db:"lookup_timestamp"`
}

func newAnalyticsRow(e *internal.AnalyticsEvent) analyticsRow {
	return analyticsRow{
		LinkID:          e.LinkID,
		AccountID:       e.AccountID,
		IPAddress:       e.IPAddress,
		IPVersion:       e.IPVersion,
		UserAgent:       e.UserAgent,
		Platform:        e.Platform,
		Browser:         e.Browser,
		Version:         e.Version,
		Language:        e.Language,
		Referrer:        e.Referrer,
		Timestamp:       NewDate(e.Timestamp),
		RemotePort:      e.RemotePort,
		Accept:          e.Accept,
		AcceptLanguage:  e.AcceptLanguage,
		AcceptEncoding:  e.AcceptEncoding,
		Country:         e.Country,
		ISP:             e.IPData.ISP,
		LookupCountry:   e.IPData.Country,
		LookupTimestamp: NewDate(e.IPData.Timestamp),
	}
}

func (r *analyticsRow) toDomain() *internal.AnalyticsEvent {
	return &internal.AnalyticsEvent{
		ID:        r.ID,
		LinkID:    r.LinkID,
		AccountID: r.AccountID,
		ClientInfo: internal.ClientInfo{
			IPAddress:      r.IPAddress,
			IPVersion:      r.IPVersion,
			UserAgent:      r.UserAgent,
			Platform:       r.Platform,
			Browser:        r.Browser,
			Version:        r.Version,
			Language:       r.Language,
			Referrer:       r.Referrer,
			RemotePort:     r.RemotePort,
			Accept:         r.Accept,
			AcceptLanguage: r.AcceptLanguage,
			AcceptEncoding: r.AcceptEncoding,
			Country:        r.Country,
			Timestamp:      r.Timestamp.Time(),
		},
		IPData: internal.IPLookup{
			IPAddress: r.IPAddress,
			IPVersion: r.IPVersion,
			ISP:       r.ISP,
			Country:   r.LookupCountry,
			Timestamp: r.LookupTimestamp.Time(),
		},
	}
}

// AnalyticsQuery selects the events of one link owned by one account.
type AnalyticsQuery struct {
	AccountID string
	LinkID    string
	StartDate *time.Time
	EndDate   *time.Time
	// All disables paging.
	All bool
	Page
}

type AnalyticsRepo struct {
	db *sql.DB
}

func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo {
	return &AnalyticsRepo{db: db}
}

// Insert appends one immutable event and returns its row id.
func (r *AnalyticsRepo) Insert(ctx context.Context, event *internal.AnalyticsEvent) (int64, error) {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Insert(analyticsTable).Rows(newAnalyticsRow(event)).Executor().ExecContext(ctx)
	if err != nil {
		log.Error().Err(err).Str("link_id", event.LinkID).Msg("failed to record analytics event")
		return 0, internal.StorageError("insert analytics", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, internal.StorageError("insert analytics", err)
	}

	log.Debug().Int64("id", id).Str("link_id", event.LinkID).Str("ip", event.IPAddress).Msg("analytics event recorded")
	return id, nil
}

// List returns events newest first together with the total matching count.
func (r *AnalyticsRepo) List(ctx context.Context, q AnalyticsQuery) ([]*internal.AnalyticsEvent, int64, error) {
	executor := goqu.New(dialect, r.db)

	where := []exp.Expression{goqu.Ex{"account_id": q.AccountID, "link_id": q.LinkID}}
	// All returns the whole log of the link, date bounds included.
	if !q.All {
		where = append(where, dateRange("timestamp", q.StartDate, q.EndDate)...)
	}

	base := executor.From(analyticsTable).Where(where...)

	total, err := base.CountContext(ctx)
	if err != nil {
		return nil, 0, internal.StorageError("count analytics", err)
	}

	query := base.Order(goqu.C("timestamp").Desc(), goqu.C("id").Desc())
	if !q.All {
		query = q.Page.apply(query)
	}

	var rows []analyticsRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		return nil, 0, internal.StorageError("list analytics", err)
	}

	events := make([]*internal.AnalyticsEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].toDomain()
	}
	return events, total, nil
}

// Delete removes a single event. The id is opaque to callers; anything that does
// not convert to a row id is rejected with ErrInvalidObjectID.
func (r *AnalyticsRepo) Delete(ctx context.Context, accountID, linkID, id string) error {
	rowID, ok := ParseObjectID(id)
	if !ok {
		return internal.ErrInvalidObjectID
	}

	n, err := r.deleteWhere(ctx, goqu.Ex{"id": rowID, "account_id": accountID, "link_id": linkID})
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.ErrAnalyticsNotFound
	}
	return nil
}

// DeleteForLink removes every event of one link and reports ErrAnalyticsNotFound
// when there was nothing to remove.
func (r *AnalyticsRepo) DeleteForLink(ctx context.Context, accountID, linkID string) error {
	n, err := r.deleteWhere(ctx, goqu.Ex{"account_id": accountID, "link_id": linkID})
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.ErrAnalyticsNotFound
	}
	return nil
}

// DeleteForAccount removes every event owned by the account. Finding nothing is not an error.
func (r *AnalyticsRepo) DeleteForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.deleteWhere(ctx, goqu.Ex{"account_id": accountID})
}

func (r *AnalyticsRepo) deleteWhere(ctx context.Context, where goqu.Ex) (int64, error) {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Delete(analyticsTable).Where(where).Executor().ExecContext(ctx)
	if err != nil {
		return 0, internal.StorageError("delete analytics", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internal.StorageError("delete analytics", err)
	}
	return n, nil
}

// Count returns the number of events matching where. A nil where counts all events.
func (r *AnalyticsRepo) Count(ctx context.Context, where goqu.Ex) (int64, error) {
	executor := goqu.New(dialect, r.db)

	ds := executor.From(analyticsTable)
	if where != nil {
		ds = ds.Where(where)
	}
	count, err := ds.CountContext(ctx)
	if err != nil {
		return 0, internal.StorageError("count analytics", err)
	}
	return count, nil
}

type statItemRow struct {
	ID    string `db:"id"`
	Count int64  `db:"count"`
}

// GroupCount groups all events by column and returns one item per distinct
// value, ordered by count descending and then by value so ties are stable.
func (r *AnalyticsRepo) GroupCount(ctx context.Context, column string) ([]internal.StatItem, error) {
	executor := goqu.New(dialect, r.db)

	var rows []statItemRow
	err := executor.From(analyticsTable).
		Select(goqu.C(column).As("id"), goqu.COUNT("*").As("count")).
		GroupBy(goqu.C(column)).
		Order(goqu.I("count").Desc(), goqu.I("id").Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, internal.StorageError("group analytics by "+column, err)
	}

	items := make([]internal.StatItem, len(rows))
	for i, row := range rows {
		items[i] = internal.StatItem{ID: row.ID, Count: row.Count}
	}
	return items, nil
}
