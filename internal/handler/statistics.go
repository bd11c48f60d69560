package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/marcus7i/ulinks/internal/stats"
)

type StatisticsHandler struct {
	engine *stats.Engine
}

func NewStatisticsHandler(engine *stats.Engine) *StatisticsHandler {
	return &StatisticsHandler{engine: engine}
}

// GetStatistics serves the cached summary, recomputing it first when stale.
func (h *StatisticsHandler) GetStatistics(c echo.Context) error {
	summary, err := h.engine.Current(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, "Statistics retrieved successfully", envelope{"stats": summary})
}

// Rebuild forces a recompute regardless of staleness.
func (h *StatisticsHandler) Rebuild(c echo.Context) error {
	summary, err := h.engine.Recompute(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, "Statistics rebuilt successfully", envelope{"stats": summary})
}
