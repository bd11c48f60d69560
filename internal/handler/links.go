package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
	"github.com/marcus7i/ulinks/internal/analytics"
	"github.com/marcus7i/ulinks/internal/auth"
	"github.com/marcus7i/ulinks/internal/clientinfo"
	"github.com/marcus7i/ulinks/internal/metrics"
	"github.com/marcus7i/ulinks/internal/repo"
)

const notFoundPath = "/not-found"

type LinkHandler struct {
	linksRepo *repo.LinksRepo
	recorder  *analytics.Recorder
}

func NewLinkHandler(linksRepo *repo.LinksRepo, recorder *analytics.Recorder) *LinkHandler {
	return &LinkHandler{
		linksRepo: linksRepo,
		recorder:  recorder,
	}
}

// Redirect resolves a short id and answers immediately. The click is captured
// here and persisted in the background.
func (h *LinkHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	shortID := c.Param("shortId")

	link, err := h.linksRepo.Resolve(ctx, shortID)
	if errors.Is(err, internal.ErrNotFound) {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		log.Debug().Str("short_id", shortID).Msg("link not found")
		return c.Redirect(http.StatusTemporaryRedirect, notFoundPath)
	}
	if err != nil {
		metrics.Redirects.WithLabelValues("error").Inc()
		return err
	}

	info := clientinfo.Capture(c.Request(), time.Now())
	h.recorder.Record(ctx, link, info)

	metrics.Redirects.WithLabelValues("found").Inc()
	log.Debug().Str("short_id", shortID).Str("ip", info.IPAddress).Msg("redirecting link")
	return c.Redirect(http.StatusTemporaryRedirect, link.TargetURL)
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	return h.listLinks(c, auth.ClaimsFrom(c).AccountID)
}

func (h *LinkHandler) listLinks(c echo.Context, accountID string) error {
	links, err := h.linksRepo.List(c.Request().Context(), accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to list links")
		return err
	}
	return ok(c, "Links retrieved successfully", envelope{"links": links})
}

func (h *LinkHandler) GetLink(c echo.Context) error {
	shortID := c.QueryParam("shortId")
	if shortID == "" {
		return badRequest("missing shortId parameter")
	}
	return h.getLink(c, auth.ClaimsFrom(c).AccountID, shortID)
}

func (h *LinkHandler) getLink(c echo.Context, accountID, shortID string) error {
	link, err := h.linksRepo.Get(c.Request().Context(), accountID, shortID)
	if err != nil {
		return err
	}
	return ok(c, "Link retrieved successfully", envelope{"link": link})
}

type CreateLinkRequest struct {
	TargetURL string `json:"target_url" validate:"required,weburl"`
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := auth.ClaimsFrom(c).AccountID

	var req CreateLinkRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	link, err := h.linksRepo.Create(ctx, accountID, req.TargetURL)
	if err != nil {
		return err
	}
	return ok(c, "Link Creation succeeded", envelope{"shortId": link.ShortID, "link": link})
}

type UpdateLinkRequest struct {
	ShortID   string `json:"shortId" validate:"required"`
	TargetURL string `json:"target_url" validate:"required,weburl"`
}

func (h *LinkHandler) UpdateLink(c echo.Context) error {
	var req UpdateLinkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.updateLink(c, auth.ClaimsFrom(c).AccountID, req.ShortID, req.TargetURL)
}

func (h *LinkHandler) updateLink(c echo.Context, accountID, shortID, targetURL string) error {
	if err := h.linksRepo.Update(c.Request().Context(), accountID, shortID, targetURL); err != nil {
		return err
	}
	log.Info().Str("short_id", shortID).Str("account_id", accountID).Msg("link updated")
	return ok(c, "Link updated successfully", nil)
}

type DeleteLinkRequest struct {
	ShortID string `json:"shortId" validate:"required"`
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	var req DeleteLinkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.deleteLink(c, auth.ClaimsFrom(c).AccountID, req.ShortID)
}

// deleteLink removes the link together with its analytics.
func (h *LinkHandler) deleteLink(c echo.Context, accountID, shortID string) error {
	if err := h.linksRepo.Delete(c.Request().Context(), accountID, shortID); err != nil {
		return err
	}
	return ok(c, "Link removal succeeded", nil)
}
