package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/metrics"
)

const (
	DefaultTokenTTL   = 5 * time.Minute
	DefaultSessionTTL = 30 * 24 * time.Hour
)

type SessionStore interface {
	Create(ctx context.Context, session *internal.Session) error
	Find(ctx context.Context, sessionID, accountID string) (*internal.Session, error)
	ListActive(ctx context.Context, accountID string, now time.Time) ([]*internal.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Delete(ctx context.Context, sessionID, accountID string) (bool, error)
	DeleteAll(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type AccountStore interface {
	Get(ctx context.Context, accountID string) (*internal.Account, error)
}

type Config struct {
	Secret     string
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

// Grant is the outcome of a login or refresh: a freshly minted token plus the
// absolute expiry of the session backing it.
type Grant struct {
	Token            string
	Account          *internal.Account
	SessionID        string
	SessionExpiresAt time.Time
}

// Manager owns the session lifecycle. Tokens are short-lived claims; the session
// store is the source of truth for revocation.
type Manager struct {
	sessions   SessionStore
	accounts   AccountStore
	secret     []byte
	tokenTTL   time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

func NewManager(sessions SessionStore, accounts AccountStore, cfg Config) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Manager{
		sessions:   sessions,
		accounts:   accounts,
		secret:     []byte(cfg.Secret),
		tokenTTL:   cfg.TokenTTL,
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}
}

// Issue creates a new session for the account and returns its id.
func (m *Manager) Issue(ctx context.Context, accountID, userAgent, ipAddress string) (*internal.Session, error) {
	now := m.now()
	session := &internal.Session{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(m.sessionTTL),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID).Str("session_id", session.ID).Msg("session issued")
	return session, nil
}

// Login signs an existing account in on a new session. The account id is the
// only credential, so an unknown id is an authentication failure.
func (m *Manager) Login(ctx context.Context, accountID, userAgent, ipAddress string) (*Grant, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if errors.Is(err, internal.ErrNotFound) {
		log.Info().Str("account_id", accountID).Msg("login rejected for unknown account")
		return nil, fmt.Errorf("%w: invalid account id", internal.ErrAuth)
	}
	if err != nil {
		return nil, err
	}

	session, err := m.Issue(ctx, account.AccountID, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	token, err := m.MintToken(account, session.ID)
	if err != nil {
		return nil, err
	}
	return &Grant{Token: token, Account: account, SessionID: session.ID, SessionExpiresAt: session.ExpiresAt}, nil
}

// MintToken signs a token for the account bound to sessionID, valid for the token TTL.
func (m *Manager) MintToken(account *internal.Account, sessionID string) (string, error) {
	now := m.now()
	claims := &Claims{
		AccountID: account.AccountID,
		IsAdmin:   account.IsAdmin,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   account.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	return signToken(claims, m.secret)
}

// ParseToken verifies a token. Expired but authentic tokens come back with their
// claims and an error matching jwt.ErrTokenExpired.
func (m *Manager) ParseToken(token string) (*Claims, error) {
	return parseToken(token, m.secret, m.now)
}

// RefreshToken re-validates the session behind claims, stamps its last_active and
// mints a new token carrying the account's current role. It never extends the
// session's absolute expiry.
func (m *Manager) RefreshToken(ctx context.Context, claims *Claims) (*Grant, error) {
	session, err := m.activeSession(ctx, claims.SessionID, claims.AccountID)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, err
	}

	account, err := m.accounts.Get(ctx, claims.AccountID)
	if errors.Is(err, internal.ErrNotFound) {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, internal.ErrSessionInvalid
	}
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := m.sessions.Touch(ctx, session.ID, m.now()); err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	token, err := m.MintToken(account, session.ID)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	log.Debug().Str("account_id", account.AccountID).Str("session_id", session.ID).Msg("token refreshed")
	return &Grant{Token: token, Account: account, SessionID: session.ID, SessionExpiresAt: session.ExpiresAt}, nil
}

// Validate reports whether a session matching both ids exists and has not reached
// its absolute expiry.
func (m *Manager) Validate(ctx context.Context, sessionID, accountID string) (bool, error) {
	_, err := m.activeSession(ctx, sessionID, accountID)
	switch {
	case err == nil:
		metrics.SessionChecks.WithLabelValues("valid").Inc()
		return true, nil
	case errors.Is(err, internal.ErrSessionInvalid):
		metrics.SessionChecks.WithLabelValues("invalid").Inc()
		return false, nil
	default:
		metrics.SessionChecks.WithLabelValues("error").Inc()
		return false, err
	}
}

func (m *Manager) activeSession(ctx context.Context, sessionID, accountID string) (*internal.Session, error) {
	session, err := m.sessions.Find(ctx, sessionID, accountID)
	if errors.Is(err, internal.ErrSessionNotFound) {
		return nil, internal.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}
	if !session.Active(m.now()) {
		return nil, internal.ErrSessionInvalid
	}
	return session, nil
}

// Revoke hard-deletes one session. A missing session is reported as false, not as an error.
func (m *Manager) Revoke(ctx context.Context, sessionID, accountID string) (bool, error) {
	deleted, err := m.sessions.Delete(ctx, sessionID, accountID)
	if err != nil {
		return false, err
	}
	log.Info().Str("account_id", accountID).Str("session_id", sessionID).Bool("found", deleted).Msg("session revoked")
	return deleted, nil
}

// RevokeAll deletes every session of the account.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	n, err := m.sessions.DeleteAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	log.Info().Str("account_id", accountID).Int64("count", n).Msg("all sessions revoked")
	return n, nil
}

// List returns the account's unexpired sessions, flagging currentSessionID.
func (m *Manager) List(ctx context.Context, accountID, currentSessionID string) ([]*internal.Session, error) {
	sessions, err := m.sessions.ListActive(ctx, accountID, m.now())
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		s.IsCurrentSession = s.ID == currentSessionID
	}
	return sessions, nil
}

// RunReaper deletes expired session rows every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.sessions.DeleteExpired(ctx, m.now())
			if err != nil {
				log.Error().Err(err).Msg("failed to reap expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("reaped expired sessions")
			}
		}
	}
}
