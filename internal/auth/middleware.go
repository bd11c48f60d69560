package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

const (
	CookieName = "auth_token"
	claimsKey  = "auth.claims"
)

var errNoToken = fmt.Errorf("%w: no active session", internal.ErrAuth)

type Middleware struct {
	manager       *Manager
	secureCookies bool
}

func NewMiddleware(manager *Manager, secureCookies bool) *Middleware {
	return &Middleware{manager: manager, secureCookies: secureCookies}
}

// Required rejects requests without a usable token. An expired but authentic
// token is refreshed in place when its session is still valid.
func (mw *Middleware) Required() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := mw.authenticate(c)
			if err != nil {
				return err
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// Optional attaches claims when a usable token is present and otherwise lets the
// request through anonymously.
func (mw *Middleware) Optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims, err := mw.authenticate(c); err == nil {
				c.Set(claimsKey, claims)
			}
			return next(c)
		}
	}
}

// RequireAdmin must run after Required.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := ClaimsFrom(c)
		if claims == nil || !claims.IsAdmin {
			return fmt.Errorf("%w: admin role required", internal.ErrAuth)
		}
		return next(c)
	}
}

// ClaimsFrom returns the claims attached by the middleware, or nil.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

func (mw *Middleware) authenticate(c echo.Context) (*Claims, error) {
	token, fromCookie := tokenFromRequest(c.Request())
	if token == "" {
		return nil, errNoToken
	}

	claims, err := mw.manager.ParseToken(token)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		log.Debug().Err(err).Msg("rejected token")
		return nil, fmt.Errorf("%w: invalid token", internal.ErrAuth)
	}

	grant, err := mw.manager.RefreshToken(c.Request().Context(), claims)
	if err != nil {
		if fromCookie && errors.Is(err, internal.ErrAuth) {
			mw.ExpireCookie(c)
		}
		log.Info().Err(err).Str("account_id", claims.AccountID).Str("session_id", claims.SessionID).Msg("token refresh rejected")
		return nil, err
	}

	mw.SetTokenCookie(c, grant)
	return grant.Claims(), nil
}

// SetTokenCookie stores the token in an HttpOnly cookie that lives as long as the
// session. The token inside still expires on its own schedule. The token is also
// echoed in a response header for bearer clients.
func (mw *Middleware) SetTokenCookie(c echo.Context, grant *Grant) {
	maxAge := int(grant.SessionExpiresAt.Sub(mw.manager.now()) / time.Second)
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    grant.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   mw.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   max(maxAge, 1),
	})
	c.Response().Header().Set("X-Auth-Token", grant.Token)
}

func (mw *Middleware) ExpireCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   mw.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func tokenFromRequest(r *http.Request) (token string, fromCookie bool) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	if scheme, value, ok := strings.Cut(r.Header.Get(echo.HeaderAuthorization), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value), false
	}
	return "", false
}

// Claims describes the grant as token claims for the request context.
func (g *Grant) Claims() *Claims {
	return &Claims{
		AccountID: g.Account.AccountID,
		IsAdmin:   g.Account.IsAdmin,
		SessionID: g.SessionID,
	}
}
