package handler

import (
    "context"
    "database/sql"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

// Health is a liveness probe for load balancers.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready reports whether MySQL answers.  Redis state is reported but never
// fails the probe.
func Ready(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()

        redisState := "disabled"
        if rdb != nil {
            redisState = "ok"
            if err := rdb.Ping(ctx).Err(); err != nil {
                redisState = "unavailable"
            }
        }
        if err := db.PingContext(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, envelope{
                Success: false,
                Message: "database unavailable",
                Data:    echo.Map{"redis": redisState},
            })
        }
        return ok(c, http.StatusOK, "ready", echo.Map{"database": "ok", "redis": redisState})
    }
}
