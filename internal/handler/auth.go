package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal/auth"
	"github.com/marcus7i/ulinks/internal/clientinfo"
	"github.com/marcus7i/ulinks/internal/repo"
)

type AuthHandler struct {
	manager    *auth.Manager
	middleware *auth.Middleware
	accounts   *repo.AccountsRepo
}

func NewAuthHandler(manager *auth.Manager, middleware *auth.Middleware, accounts *repo.AccountsRepo) *AuthHandler {
	return &AuthHandler{manager: manager, middleware: middleware, accounts: accounts}
}

type RegisterRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// Register creates a new account. Creating an admin account requires an admin caller.
func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if req.IsAdmin {
		claims := auth.ClaimsFrom(c)
		if claims == nil || !claims.IsAdmin {
			log.Info().Msg("unauthorized admin registration attempt")
			return respond(c, http.StatusUnauthorized, "Unauthorized admin registration attempt", nil)
		}
	}

	account, err := h.accounts.Create(ctx, req.IsAdmin)
	if err != nil {
		return err
	}

	message := "Registration successful"
	if req.IsAdmin {
		message = "Admin registration successful"
	}
	return ok(c, message, envelope{"account_id": account.AccountID})
}

type LoginRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	r := c.Request()
	grant, err := h.manager.Login(ctx, req.AccountID, r.UserAgent(), clientinfo.ClientIP(r))
	if err != nil {
		return err
	}
	h.middleware.SetTokenCookie(c, grant)

	return ok(c, "Login successful", envelope{
		"account_id": grant.Account.AccountID,
		"is_admin":   grant.Account.IsAdmin,
		"session_id": grant.SessionID,
		"expires_at": grant.SessionExpiresAt,
		"token":      grant.Token,
	})
}

// Logout revokes the caller's session, if any, and always clears the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	if claims := auth.ClaimsFrom(c); claims != nil {
		if _, err := h.manager.Revoke(ctx, claims.SessionID, claims.AccountID); err != nil {
			log.Error().Err(err).Str("session_id", claims.SessionID).Msg("failed to revoke session on logout")
		}
	}
	h.middleware.ExpireCookie(c)
	return ok(c, "Logged out", nil)
}

// CheckSession is the liveness probe polled by the browser. It always asks the
// session store, whatever the token says.
func (h *AuthHandler) CheckSession(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)

	valid, err := h.manager.Validate(ctx, claims.SessionID, claims.AccountID)
	if err != nil {
		return err
	}
	if !valid {
		log.Info().
			Str("session_id", claims.SessionID).
			Str("account_id", claims.AccountID).
			Msg("session check failed - revoked or expired session")
		h.middleware.ExpireCookie(c)
		return respond(c, http.StatusUnauthorized, "Session has been revoked", envelope{"valid": false})
	}
	return ok(c, "", envelope{"valid": true})
}

// Refresh is the explicit keep-alive: it stamps the session and re-mints the token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	grant, err := h.manager.RefreshToken(ctx, auth.ClaimsFrom(c))
	if err != nil {
		return err
	}
	h.middleware.SetTokenCookie(c, grant)

	return ok(c, "Session refreshed", envelope{
		"token":      grant.Token,
		"is_admin":   grant.Account.IsAdmin,
		"expires_at": grant.SessionExpiresAt,
	})
}

func (h *AuthHandler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)

	sessions, err := h.manager.List(ctx, claims.AccountID, claims.SessionID)
	if err != nil {
		return err
	}
	return ok(c, "", envelope{"sessions": sessions})
}

type RevokeSessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (h *AuthHandler) RevokeSession(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)

	var req RevokeSessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	found, err := h.manager.Revoke(ctx, req.SessionID, claims.AccountID)
	if err != nil {
		return err
	}

	isCurrent := req.SessionID == claims.SessionID
	if isCurrent {
		h.middleware.ExpireCookie(c)
	}
	if !found {
		return respond(c, http.StatusNotFound, "Session not found", envelope{"is_current_session": isCurrent})
	}
	return ok(c, "Session revoked successfully", envelope{"is_current_session": isCurrent})
}

type DeleteAccountRequest struct {
	AccountID string `json:"account_id"`
}

// DeleteAccount removes the caller's own account, or any account when the caller
// is an admin, cascading to links, analytics and sessions.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)

	var req DeleteAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.AccountID == "" {
		req.AccountID = claims.AccountID
	}

	own := req.AccountID == claims.AccountID
	if !own && !claims.IsAdmin {
		return respond(c, http.StatusUnauthorized, "Unauthorized account removal attempt", nil)
	}

	if err := h.accounts.Delete(ctx, req.AccountID); err != nil {
		return err
	}
	if own {
		h.middleware.ExpireCookie(c)
	}

	log.Info().Str("account_id", req.AccountID).Str("by", claims.AccountID).Msg("account removed")
	return ok(c, "Account removed successfully", nil)
}
