package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal/auth"
	"github.com/marcus7i/ulinks/internal/repo"
)

type AnalyticsHandler struct {
	analyticsRepo *repo.AnalyticsRepo
}

func NewAnalyticsHandler(analyticsRepo *repo.AnalyticsRepo) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsRepo: analyticsRepo}
}

// ListAnalytics serves /api/analytics?link_id=...&page=1&limit=50&startDate=...&endDate=...&all=true
func (h *AnalyticsHandler) ListAnalytics(c echo.Context) error {
	linkID := c.QueryParam("link_id")
	if linkID == "" {
		return badRequest("missing link_id parameter")
	}
	return h.listAnalytics(c, auth.ClaimsFrom(c).AccountID, linkID)
}

func (h *AnalyticsHandler) listAnalytics(c echo.Context, accountID, linkID string) error {
	q := repo.AnalyticsQuery{
		AccountID: accountID,
		LinkID:    linkID,
		All:       c.QueryParam("all") == "true",
	}

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

	events, total, err := h.analyticsRepo.List(c.Request().Context(), q)
	if err != nil {
		return err
	}

	p := newPagination(total, q.Page.Page, q.Page.Limit)
	if q.All {
		p = newPagination(total, 1, uint(max(total, 1)))
	}
	return ok(c, "Analytics retrieved successfully", envelope{
		"analytics":  events,
		"pagination": p,
	})
}

type DeleteAnalyticsRequest struct {
	LinkID      string `json:"link_id" validate:"required"`
	AnalyticsID string `json:"analytics_id" validate:"required_without=DeleteAll"`
	DeleteAll   bool   `json:"delete_all"`
}

func (h *AnalyticsHandler) DeleteAnalytics(c echo.Context) error {
	var req DeleteAnalyticsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.deleteAnalytics(c, auth.ClaimsFrom(c).AccountID, req.LinkID, req.AnalyticsID, req.DeleteAll)
}

func (h *AnalyticsHandler) deleteAnalytics(c echo.Context, accountID, linkID, analyticsID string, all bool) error {
	ctx := c.Request().Context()

	if all {
		if err := h.analyticsRepo.DeleteForLink(ctx, accountID, linkID); err != nil {
			return err
		}
		log.Info().Str("account_id", accountID).Str("link_id", linkID).Msg("all analytics deleted")
		return ok(c, "All analytics records deleted successfully", nil)
	}

	if analyticsID == "" {
		return badRequest("missing analytics_id parameter for single record deletion")
	}
	if err := h.analyticsRepo.Delete(ctx, accountID, linkID, analyticsID); err != nil {
		return err
	}
	log.Info().Str("account_id", accountID).Str("link_id", linkID).Str("analytics_id", analyticsID).Msg("analytics record deleted")
	return ok(c, "Analytics record deleted successfully", nil)
}
