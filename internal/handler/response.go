package handler // HTTP handlers and the response envelope shared by every endpoint

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/esummit/pass-registry/internal/service"
)

// requestTimeout bounds the work a single request may do.
const requestTimeout = 15 * time.Second

// envelope is the body of every JSON response.
type envelope struct {
    Success bool   `json:"success"`
    Message string `json:"message,omitempty"`
    Error   string `json:"error,omitempty"`
    Data    any    `json:"data,omitempty"`
}

func ok(c echo.Context, status int, msg string, data any) error {
    return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
    return c.JSON(status, envelope{Success: false, Message: msg})
}

// statusOf maps a service error kind to an HTTP status.
func statusOf(k service.Kind) int {
    switch k {
    case service.KindValidation, service.KindConflict:
        return http.StatusBadRequest
    case service.KindNotFound:
        return http.StatusNotFound
    case service.KindUnauthorized:
        return http.StatusUnauthorized
    default:
        return http.StatusInternalServerError
    }
}

// failErr writes err in the envelope.  Server-side failures are logged
// with their cause; for gateway failures the upstream message is also
// returned in "error".
func failErr(c echo.Context, log *slog.Logger, err error) error {
    kind := service.KindOf(err)
    status := statusOf(kind)
    body := envelope{Success: false, Message: service.MessageOf(err)}
    if status >= http.StatusInternalServerError {
        log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
        if cause := errors.Unwrap(err); cause != nil && kind == service.KindUpstream {
            body.Error = cause.Error()
        }
    }
    return c.JSON(status, body)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func orDiscard(l *slog.Logger) *slog.Logger {
    if l == nil {
        return slog.New(slog.DiscardHandler)
    }
    return l
}
