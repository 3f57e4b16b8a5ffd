package middleware // reusable HTTP middleware for the admin surface and public API

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/esummit/pass-registry/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxAdminID = "admin_id"
    CtxRole    = "role"
    CtxEmail   = "email"
)

// JWTAuth validates a Bearer access token and stores the admin id, role and
// email in the echo context under CtxAdminID, CtxRole and CtxEmail.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return deny(c, http.StatusUnauthorized, "missing bearer token")
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return deny(c, http.StatusUnauthorized, "invalid token")
            }
            c.Set(CtxAdminID, claims.AdminID)
            c.Set(CtxRole, claims.Role)
            c.Set(CtxEmail, claims.Email)
            return next(c)
        }
    }
}

func deny(c echo.Context, status int, msg string) error {
    return c.JSON(status, echo.Map{"success": false, "message": msg})
}
