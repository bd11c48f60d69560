package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus7i/ulinks/internal"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"validation", internal.ErrInvalidURL, http.StatusBadRequest, "Invalid URL, provide a valid URL with http:// or https://"},
		{"bad request helper", badRequest("missing link_id parameter"), http.StatusBadRequest, "Missing link_id parameter"},
		{"auth", internal.ErrSessionInvalid, http.StatusUnauthorized, "Session has been revoked"},
		{"not found", internal.ErrLinkNotFound, http.StatusNotFound, "Link not found"},
		{"wrapped not found", fmt.Errorf("load link: %w", internal.ErrLinkNotFound), http.StatusNotFound, "Link not found"},
		{"domain", internal.ErrCannotDeleteAdmin, http.StatusUnprocessableEntity, "Cannot delete admin accounts"},
		{"storage is hidden", internal.StorageError("insert", errors.New("disk I/O error")), http.StatusInternalServerError, "internal server error"},
		{"plain error is hidden", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed, "Method Not Allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := ErrorStatus(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestNewPagination(t *testing.T) {
	p := newPagination(101, 0, 0)
	assert.Equal(t, pagination{Total: 101, Page: 1, Limit: defaultPageLimit, TotalPages: 3}, p)

	assert.Zero(t, newPagination(0, 1, 10).TotalPages)
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	type request struct {
		AccountID string `json:"account_id" validate:"required"`
		TargetURL string `json:"target_url" validate:"omitempty,weburl"`
	}

	require.NoError(t, v.Validate(&request{AccountID: "1", TargetURL: "https://example.com/x?y=1"}))

	err := v.Validate(&request{})
	assert.ErrorIs(t, err, internal.ErrValidation)
	assert.ErrorContains(t, err, "account_id is required")

	for _, raw := range []string{"example.com", "javascript:alert(1)", "ftp://example.com", "https://"} {
		err := v.Validate(&request{AccountID: "1", TargetURL: raw})
		assert.ErrorIs(t, err, internal.ErrInvalidURL, raw)
	}
}
