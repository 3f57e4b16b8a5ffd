package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// ClerkUserHeader lets the frontend name the signed-in registrant on
// requests whose body carries the id, so limits apply per person.
const ClerkUserHeader = "X-Clerk-User-Id"

// callerID identifies who is calling for rate-limit keys: the
// registrant named by the route or header, else the admin from the JWT,
// else "anon".
func callerID(c echo.Context) string {
    if v := c.Param("clerkUserId"); v != "" {
        return v
    }
    if v := c.Request().Header.Get(ClerkUserHeader); v != "" {
        return v
    }
    if id, ok := c.Get(CtxAdminID).(uint64); ok && id != 0 {
        return "admin-" + strconv.FormatUint(id, 10)
    }
    return "anon"
}
