package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

type sessionRow struct {
	ID         string `db:"id"`
	AccountID  string `db:"account_id"`
	UserAgent  string `db:"user_agent"`
	IPAddress  string `db:"ip_address"`
	CreatedAt  Date   `db:"created_at"`
	LastActive Date   `db:"last_active"`
	ExpiresAt  Date   `db:"expires_at"`
}

func newSessionRow(s *internal.Session) sessionRow {
	return sessionRow{
		ID:         s.ID,
		AccountID:  s.AccountID,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
		CreatedAt:  NewDate(s.CreatedAt),
		LastActive: NewDate(s.LastActive),
		ExpiresAt:  NewDate(s.ExpiresAt),
	}
}

func (r *sessionRow) toDomain() *internal.Session {
	return &internal.Session{
		ID:         r.ID,
		AccountID:  r.AccountID,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		CreatedAt:  r.CreatedAt.Time(),
		LastActive: r.LastActive.Time(),
		ExpiresAt:  r.ExpiresAt.Time(),
	}
}

type SessionsRepo struct {
	db *sql.DB
}

func NewSessionsRepo(db *sql.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

func (r *SessionsRepo) Create(ctx context.Context, session *internal.Session) error {
	executor := goqu.New(dialect, r.db)

	_, err := executor.Insert(sessionsTable).Rows(newSessionRow(session)).Executor().ExecContext(ctx)
	if err != nil {
		log.Error().Err(err).Str("account_id", session.AccountID).Msg("failed to create session")
		return internal.StorageError("create session", err)
	}
	return nil
}

// Find returns the session matching both ids, or ErrSessionNotFound.
func (r *SessionsRepo) Find(ctx context.Context, sessionID, accountID string) (*internal.Session, error) {
	executor := goqu.New(dialect, r.db)

	var row sessionRow
	found, err := executor.From(sessionsTable).
		Where(goqu.Ex{"id": sessionID, "account_id": accountID}).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, internal.StorageError("find session", err)
	}
	if !found {
		return nil, internal.ErrSessionNotFound
	}
	return row.toDomain(), nil
}

// ListActive returns the account's sessions that expire after now, most recently active first.
func (r *SessionsRepo) ListActive(ctx context.Context, accountID string, now time.Time) ([]*internal.Session, error) {
	executor := goqu.New(dialect, r.db)

	var rows []sessionRow
	err := executor.From(sessionsTable).
		Where(
			goqu.C("account_id").Eq(accountID),
			goqu.C("expires_at").Gt(NewDate(now)),
		).
		Order(goqu.C("last_active").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, internal.StorageError("list sessions", err)
	}

	sessions := make([]*internal.Session, len(rows))
	for i := range rows {
		sessions[i] = rows[i].toDomain()
	}
	return sessions, nil
}

// Touch stamps last_active. It never moves expires_at.
func (r *SessionsRepo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	executor := goqu.New(dialect, r.db)

	_, err := executor.Update(sessionsTable).
		Set(goqu.Record{"last_active": NewDate(at)}).
		Where(goqu.Ex{"id": sessionID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return internal.StorageError("touch session", err)
	}
	return nil
}

// Delete hard-deletes one session and reports whether a row was removed.
func (r *SessionsRepo) Delete(ctx context.Context, sessionID, accountID string) (bool, error) {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Delete(sessionsTable).
		Where(goqu.Ex{"id": sessionID, "account_id": accountID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return false, internal.StorageError("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, internal.StorageError("delete session", err)
	}
	return n > 0, nil
}

// DeleteAll removes every session for the account and returns how many were removed.
func (r *SessionsRepo) DeleteAll(ctx context.Context, accountID string) (int64, error) {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Delete(sessionsTable).Where(goqu.Ex{"account_id": accountID}).Executor().ExecContext(ctx)
	if err != nil {
		return 0, internal.StorageError("delete sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internal.StorageError("delete sessions", err)
	}
	return n, nil
}

// DeleteExpired removes rows whose absolute expiry is at or before now.
func (r *SessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Delete(sessionsTable).Where(goqu.C("expires_at").Lte(NewDate(now))).Executor().ExecContext(ctx)
	if err != nil {
		return 0, internal.StorageError("delete expired sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internal.StorageError("delete expired sessions", err)
	}
	return n, nil
}
