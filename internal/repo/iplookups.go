package repo

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"

	"github.com/marcus7i/ulinks/internal"
)

type ipLookupRow struct {
	IPAddress string `db:"ip_address"`
	IPVersion string `db:"ip_version"`
	ISP       string `db:"isp"`
	Country   string `db:"country"`
	Timestamp Date   `db:"timestamp"`
}

func (r *ipLookupRow) toDomain() *internal.IPLookup {
	return &internal.IPLookup{
		IPAddress: r.IPAddress,
		IPVersion: r.IPVersion,
		ISP:       r.ISP,
		Country:   r.Country,
		Timestamp: r.Timestamp.Time(),
	}
}

// IPLookupsRepo is the SQLite side cache of geolocation results.
type IPLookupsRepo struct {
	db *sql.DB
}

func NewIPLookupsRepo(db *sql.DB) *IPLookupsRepo {
	return &IPLookupsRepo{db: db}
}

// Get returns the cached entry or nil when the address was never looked up.
// Freshness is the caller's decision.
func (r *IPLookupsRepo) Get(ctx context.Context, ip string) (*internal.IPLookup, error) {
	executor := goqu.New(dialect, r.db)

	var row ipLookupRow
	found, err := executor.From(ipLookupsTable).Where(goqu.Ex{"ip_address": ip}).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, internal.StorageError("get ip lookup", err)
	}
	if !found {
		return nil, nil
	}
	return row.toDomain(), nil
}

// Upsert writes the entry keyed by address. Concurrent upserts of the same
// address are harmless: the last writer wins.
func (r *IPLookupsRepo) Upsert(ctx context.Context, lookup *internal.IPLookup) error {
	executor := goqu.New(dialect, r.db)

	row := ipLookupRow{
		IPAddress: lookup.IPAddress,
		IPVersion: lookup.IPVersion,
		ISP:       lookup.ISP,
		Country:   lookup.Country,
		Timestamp: NewDate(lookup.Timestamp),
	}
	query := executor.Insert(ipLookupsTable).Rows(row).OnConflict(goqu.DoUpdate("ip_address", goqu.Record{
		"ip_version": row.IPVersion,
		"isp":        row.ISP,
		"country":    row.Country,
		"timestamp":  row.Timestamp,
	}))
	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return internal.StorageError("upsert ip lookup", err)
	}
	return nil
}
