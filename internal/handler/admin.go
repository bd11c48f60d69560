package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/auth"
	"github.com/marcus7i/ulinks/internal/repo"
)

// AdminHandler serves /api/admin. Every route sits behind auth.RequireAdmin.
// Link and analytics operations reuse the owner handlers with the account taken
// from the path instead of the token.
type AdminHandler struct {
	accounts  *repo.AccountsRepo
	manager   *auth.Manager
	links     *LinkHandler
	analytics *AnalyticsHandler
}

func NewAdminHandler(accounts *repo.AccountsRepo, manager *auth.Manager, links *LinkHandler, analytics *AnalyticsHandler) *AdminHandler {
	return &AdminHandler{accounts: accounts, manager: manager, links: links, analytics: analytics}
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	q := repo.AccountQuery{Search: c.QueryParam("search")}

	var err error
	if q.Page.Page, err = queryUint(c, "page", 1); err != nil {
		return err
	}
	if q.Page.Limit, err = queryUint(c, "limit", defaultPageLimit); err != nil {
		return err
	}
	if q.StartDate, err = queryDate(c, "startDate"); err != nil {
		return err
	}
	if q.EndDate, err = queryDate(c, "endDate"); err != nil {
		return err
	}

	users, total, err := h.accounts.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return ok(c, "", envelope{
		"users":      users,
		"total":      total,
		"pagination": newPagination(total, q.Page.Page, q.Page.Limit),
	})
}

type AdminDeleteUserRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

// DeleteUser removes another non-admin account and everything it owns.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)

	var req AdminDeleteUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if req.AccountID == claims.AccountID {
		return internal.ErrCannotDeleteSelf
	}
	target, err := h.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return err
	}
	if target.IsAdmin {
		return internal.ErrCannotDeleteAdmin
	}

	if err := h.accounts.Delete(ctx, target.AccountID); err != nil {
		return err
	}
	log.Info().Str("account_id", target.AccountID).Str("by", claims.AccountID).Msg("user deleted by admin")
	return ok(c, "User deleted successfully", nil)
}

func (h *AdminHandler) GetUser(c echo.Context) error {
	account, err := h.accounts.Get(c.Request().Context(), c.Param("accountId"))
	if err != nil {
		return err
	}
	return ok(c, "", envelope{"user": account})
}

// ToggleAdmin flips the role of another account and revokes all of its sessions
// so no outstanding token keeps the old role.
func (h *AdminHandler) ToggleAdmin(c echo.Context) error {
	ctx := c.Request().Context()
	claims := auth.ClaimsFrom(c)
	accountID := c.Param("accountId")

	if accountID == claims.AccountID {
		return internal.ErrCannotToggleSelf
	}

	account, err := h.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	isAdmin := !account.IsAdmin
	if err := h.accounts.SetAdmin(ctx, accountID, isAdmin); err != nil {
		return err
	}

	revoked, err := h.manager.RevokeAll(ctx, accountID)
	if err != nil {
		return err
	}

	log.Info().
		Str("account_id", accountID).
		Bool("is_admin", isAdmin).
		Int64("sessions_revoked", revoked).
		Msg("admin status toggled, all sessions revoked")

	status := "User is no longer an admin."
	if isAdmin {
		status = "User is now an admin."
	}
	return ok(c, status+" User will need to log in again.", envelope{"is_admin": isAdmin})
}

func (h *AdminHandler) ListSessions(c echo.Context) error {
	sessions, err := h.manager.List(c.Request().Context(), c.Param("accountId"), "")
	if err != nil {
		return err
	}
	return ok(c, "", envelope{"sessions": sessions})
}

type AdminRevokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

// RevokeSessions revokes one session of the account when session_id is given,
// otherwise all of them.
func (h *AdminHandler) RevokeSessions(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := c.Param("accountId")

	var req AdminRevokeSessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if req.SessionID == "" {
		n, err := h.manager.RevokeAll(ctx, accountID)
		if err != nil {
			return err
		}
		return ok(c, fmt.Sprintf("%d sessions revoked", n), envelope{"revoked": n})
	}

	found, err := h.manager.Revoke(ctx, req.SessionID, accountID)
	if err != nil {
		return err
	}
	if !found {
		return internal.ErrSessionNotFound
	}
	return ok(c, "Session revoked successfully", envelope{"revoked": 1})
}

func (h *AdminHandler) ListLinks(c echo.Context) error {
	if err := h.ensureUser(c); err != nil {
		return err
	}
	return h.links.listLinks(c, c.Param("accountId"))
}

func (h *AdminHandler) GetLink(c echo.Context) error {
	return h.links.getLink(c, c.Param("accountId"), c.Param("shortId"))
}

type AdminUpdateLinkRequest struct {
	TargetURL string `json:"target_url" validate:"required,weburl"`
}

func (h *AdminHandler) UpdateLink(c echo.Context) error {
	var req AdminUpdateLinkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.links.updateLink(c, c.Param("accountId"), c.Param("shortId"), req.TargetURL)
}

func (h *AdminHandler) DeleteLink(c echo.Context) error {
	return h.links.deleteLink(c, c.Param("accountId"), c.Param("shortId"))
}

func (h *AdminHandler) ListLinkAnalytics(c echo.Context) error {
	return h.analytics.listAnalytics(c, c.Param("accountId"), c.Param("shortId"))
}

type AdminDeleteAnalyticsRequest struct {
	AnalyticsID string `json:"analytics_id"`
	DeleteAll   bool   `json:"delete_all"`
}

func (h *AdminHandler) DeleteLinkAnalytics(c echo.Context) error {
	var req AdminDeleteAnalyticsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.analytics.deleteAnalytics(c, c.Param("accountId"), c.Param("shortId"), req.AnalyticsID, req.DeleteAll)
}

func (h *AdminHandler) ensureUser(c echo.Context) error {
	exists, err := h.accounts.Exists(c.Request().Context(), c.Param("accountId"))
	if err != nil {
		return err
	}
	if !exists {
		return internal.ErrAccountNotFound
	}
	return nil
}
