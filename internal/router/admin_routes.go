package router

import (
	"github.com/labstack/echo/v4"

	"github.com/esummit/pass-registry/internal/handler"
	"github.com/esummit/pass-registry/internal/middleware"
	"github.com/esummit/pass-registry/internal/model"
)

// RegisterAdmin registers the operator surface.  Session endpoints under
// /v1/admin/auth are open; everything else requires a valid access token
// carrying the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AuthHandler, h *handler.AdminHandler, jwtSecret string) {
	auth := e.Group("/v1/admin/auth")
	auth.POST("/login", a.Login)
	auth.POST("/refresh", a.Refresh)
	// logout accepts either a refresh token or a bearer, so it stays open
	auth.POST("/logout", a.Logout)

	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/transactions", h.Transactions)
	g.PATCH("/passes/:id/status", h.UpdatePassStatus)
	g.POST("/pass-claims/:id/approve", h.ApproveClaim)
	g.POST("/pass-claims/:id/reject", h.RejectClaim)
}
