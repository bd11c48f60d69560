package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

// envelope is the body of every JSON response: success, an optional message,
// and any payload fields alongside.
type envelope map[string]any

func respond(c echo.Context, status int, message string, payload envelope) error {
	body := envelope{"success": status < http.StatusBadRequest}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	return c.JSON(status, body)
}

func ok(c echo.Context, message string, payload envelope) error {
	return respond(c, http.StatusOK, message, payload)
}

// ErrorStatus maps an error kind to its HTTP status and the message that may be
// shown to the client.
func ErrorStatus(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		msg, _ := httpErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, msg
	case errors.Is(err, internal.ErrValidation):
		return http.StatusBadRequest, publicMessage(err, internal.ErrValidation)
	case errors.Is(err, internal.ErrAuth):
		return http.StatusUnauthorized, publicMessage(err, internal.ErrAuth)
	case errors.Is(err, internal.ErrNotFound):
		return http.StatusNotFound, publicMessage(err, internal.ErrNotFound)
	case errors.Is(err, internal.ErrDomain):
		return http.StatusUnprocessableEntity, publicMessage(err, internal.ErrDomain)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// publicMessage drops the kind prefix from messages like "not found: link not found".
func publicMessage(err error, kind error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, kind.Error()+": "); i >= 0 {
		msg = msg[i+len(kind.Error())+2:]
	}
	if msg == "" {
		return kind.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// ErrorHandler writes errors as envelopes. Unauthenticated page requests are
// sent back to the login page instead.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := ErrorStatus(err)
	isAPICall := strings.HasPrefix(c.Request().URL.Path, "/api/")

	if !isAPICall && code == http.StatusUnauthorized {
		c.Redirect(http.StatusTemporaryRedirect, "/")
		return
	}

	event := log.Info()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if err := respond(c, code, message, nil); err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

func badRequest(message string) error {
	return fmt.Errorf("%w: %s", internal.ErrValidation, message)
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return badRequest("missing required parameters")
	}
	return c.Validate(req)
}

type pagination struct {
	Total      int64 `json:"total"`
	Page       uint  `json:"page"`
	Limit      uint  `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

func newPagination(total int64, page, limit uint) pagination {
	page = max(page, 1)
	if limit == 0 {
		limit = defaultPageLimit
	}
	return pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int64(math.Ceil(float64(total) / float64(limit))),
	}
}

const defaultPageLimit = 50

func queryUint(c echo.Context, name string, def uint) (uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, badRequest("invalid " + name + " parameter")
	}
	return uint(n), nil
}

// queryDate accepts RFC 3339 timestamps or plain dates.
func queryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, badRequest("invalid " + name + " parameter")
}
