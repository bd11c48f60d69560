package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var (
	instance *sql.DB
	initErr  error
	once     sync.Once
)

// Init opens the process-wide database handle on first call and returns the same
// handle on every later call. Concurrent first callers block on the same
// initialization instead of opening redundant connections.
func Init(ctx context.Context, dbPath string) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(ctx, dbPath)
	})
	return instance, initErr
}

// Open opens a fresh handle and runs migrations. Tests use it directly to get an
// isolated database per test.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn := FormatDSN(dbPath)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("failed to ping database")
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Msg("database connection successful")

	if err := migrate(ctx, conn); err != nil {
		log.Error().Err(err).Msg("failed to run migrations")
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Msg("migrations completed successfully")

	return conn, nil
}

// FormatDSN turns a plain path into a modernc sqlite DSN with the pragmas the
// repositories rely on. A value already starting with "file:" keeps its own query.
func FormatDSN(path string) string {
	if path == "" {
		path = "ulinks.db"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}

	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Set("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	return "file:" + path + "?" + params.Encode()
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		last_active TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		FOREIGN KEY(account_id) REFERENCES accounts(account_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS links (
		short_id TEXT PRIMARY KEY,
		target_url TEXT NOT NULL,
		account_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		FOREIGN KEY(account_id) REFERENCES accounts(account_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		ip_version TEXT NOT NULL,
		user_agent TEXT NOT NULL,
		platform TEXT NOT NULL,
		browser TEXT NOT NULL,
		version TEXT NOT NULL,
		language TEXT NOT NULL,
		referrer TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		remote_port TEXT NOT NULL,
		accept TEXT NOT NULL,
		accept_language TEXT NOT NULL,
		accept_encoding TEXT NOT NULL,
		country TEXT NOT NULL,
		isp TEXT NOT NULL,
		lookup_country TEXT NOT NULL,
		lookup_timestamp TEXT NOT NULL,
		FOREIGN KEY(link_id) REFERENCES links(short_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ip_lookups (
		ip_address TEXT PRIMARY KEY,
		ip_version TEXT NOT NULL,
		isp TEXT NOT NULL,
		country TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS statistics (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_links INTEGER NOT NULL,
		total_clicks INTEGER NOT NULL,
		chart_data TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_created_at ON accounts(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	CREATE INDEX IF NOT EXISTS idx_links_account_id ON links(account_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_link_id ON analytics(link_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_account_id ON analytics(account_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_timestamp ON analytics(timestamp);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}
