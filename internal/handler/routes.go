package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/marcus7i/ulinks/internal/auth"
)

type Handlers struct {
	Auth       *AuthHandler
	Links      *LinkHandler
	Analytics  *AnalyticsHandler
	Statistics *StatisticsHandler
	Admin      *AdminHandler
	Pages      *PageHandler
}

// Register mounts every route on e. The redirect route is registered last.
func (h *Handlers) Register(e *echo.Echo, mw *auth.Middleware) {
	required := mw.Required()
	optional := mw.Optional()

	if h.Pages != nil {
		e.GET("/", h.Pages.Serve("index.html"))
		e.GET("/dashboard", h.Pages.Serve("dashboard.html"), required)
		e.GET("/admin", h.Pages.Serve("admin.html"), required, auth.RequireAdmin)
		e.GET(notFoundPath, h.Pages.Serve("not-found.html"))
	}

	api := e.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Auth.Register, optional)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/logout", h.Auth.Logout, optional)
	authGroup.GET("/check-session", h.Auth.CheckSession, required)
	authGroup.POST("/refresh", h.Auth.Refresh, required)
	authGroup.GET("/sessions", h.Auth.ListSessions, required)
	authGroup.POST("/sessions/revoke", h.Auth.RevokeSession, required)
	authGroup.DELETE("/account", h.Auth.DeleteAccount, required)

	api.GET("/links", h.Links.ListLinks, required)
	api.GET("/link", h.Links.GetLink, required)
	api.POST("/link", h.Links.CreateLink, required)
	api.PATCH("/link", h.Links.UpdateLink, required)
	api.DELETE("/link", h.Links.DeleteLink, required)

	api.GET("/analytics", h.Analytics.ListAnalytics, required)
	api.DELETE("/analytics", h.Analytics.DeleteAnalytics, required)

	api.GET("/statistics", h.Statistics.GetStatistics)

	admin := api.Group("/admin", required, auth.RequireAdmin)
	admin.GET("/users", h.Admin.ListUsers)
	admin.DELETE("/users", h.Admin.DeleteUser)
	admin.GET("/users/:accountId", h.Admin.GetUser)
	admin.POST("/users/:accountId/admin", h.Admin.ToggleAdmin)
	admin.GET("/users/:accountId/sessions", h.Admin.ListSessions)
	admin.POST("/users/:accountId/sessions/revoke", h.Admin.RevokeSessions)
	admin.GET("/users/:accountId/links", h.Admin.ListLinks)
	admin.GET("/users/:accountId/links/:shortId", h.Admin.GetLink)
	admin.PATCH("/users/:accountId/links/:shortId", h.Admin.UpdateLink)
	admin.DELETE("/users/:accountId/links/:shortId", h.Admin.DeleteLink)
	admin.GET("/users/:accountId/links/:shortId/analytics", h.Admin.ListLinkAnalytics)
	admin.DELETE("/users/:accountId/links/:shortId/analytics", h.Admin.DeleteLinkAnalytics)
	admin.POST("/statistics/rebuild", h.Statistics.Rebuild)

	e.GET("/l/:shortId", h.Links.Redirect)
}
