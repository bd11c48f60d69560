package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/marcus7i/ulinks/internal"
)

// statisticsID pins the singleton row; the table's CHECK constraint rejects any other id.
const statisticsID = 1

type statisticsRow struct {
	ID          int    `db:"id"`
	TotalLinks  int64  `db:"total_links"`
	TotalClicks int64  `db:"total_clicks"`
	ChartData   string `db:"chart_data"`
	LastUpdated Date   `db:"last_updated"`
}

func (r *statisticsRow) toDomain() (*internal.Stats, error) {
	stats := &internal.Stats{
		TotalLinks:  r.TotalLinks,
		TotalClicks: r.TotalClicks,
		LastUpdated: r.LastUpdated.Time(),
	}
	if err := json.Unmarshal([]byte(r.ChartData), &stats.ChartData); err != nil {
		return nil, fmt.Errorf("decode chart data: %w", err)
	}
	return stats, nil
}

type StatisticsRepo struct {
	db *sql.DB
}

func NewStatisticsRepo(db *sql.DB) *StatisticsRepo {
	return &StatisticsRepo{db: db}
}

// Get returns the summary, or nil if none has been computed yet.
func (r *StatisticsRepo) Get(ctx context.Context) (*internal.Stats, error) {
	executor := goqu.New(dialect, r.db)

	var row statisticsRow
	found, err := executor.From(statisticsTable).Where(goqu.Ex{"id": statisticsID}).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, internal.StorageError("get statistics", err)
	}
	if !found {
		return nil, nil
	}

	stats, err := row.toDomain()
	if err != nil {
		return nil, internal.StorageError("get statistics", err)
	}
	return stats, nil
}

// Replace overwrites the singleton wholesale, creating it on first use.
func (r *StatisticsRepo) Replace(ctx context.Context, stats *internal.Stats) error {
	executor := goqu.New(dialect, r.db)

	chart, err := json.Marshal(stats.ChartData)
	if err != nil {
		return fmt.Errorf("encode chart data: %w", err)
	}

	row := statisticsRow{
		ID:          statisticsID,
		TotalLinks:  stats.TotalLinks,
		TotalClicks: stats.TotalClicks,
		ChartData:   string(chart),
		LastUpdated: NewDate(stats.LastUpdated),
	}
	query := executor.Insert(statisticsTable).Rows(row).OnConflict(goqu.DoUpdate("id", goqu.Record{
		"total_links":  row.TotalLinks,
		"total_clicks": row.TotalClicks,
		"chart_data":   row.ChartData,
		"last_updated": row.LastUpdated,
	}))
	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return internal.StorageError("replace statistics", err)
	}
	return nil
}
