package handler

import (
    "errors"
    "io"
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/esummit/pass-registry/internal/identity"
    "github.com/esummit/pass-registry/internal/service"
)

// UserHandler exposes the user directory and the Clerk webhook.
type UserHandler struct {
    Directory *service.Directory
    Verifier  *identity.WebhookVerifier
    Log       *slog.Logger
}

func NewUserHandler(d *service.Directory, v *identity.WebhookVerifier, log *slog.Logger) *UserHandler {
    return &UserHandler{Directory: d, Verifier: v, Log: orDiscard(log)}
}

type syncReq struct {
    ClerkUserID string `json:"clerkUserId"`
    Email       string `json:"email"`
    FullName    string `json:"fullName"`
    FirstName   string `json:"firstName"`
    LastName    string `json:"lastName"`
    ImageURL    string `json:"imageUrl"`
}

func (r syncReq) input() service.SyncInput {
    return service.SyncInput{
        ExternalID: strings.TrimSpace(r.ClerkUserID),
        Email:      strings.ToLower(strings.TrimSpace(r.Email)),
        FullName:   strings.TrimSpace(r.FullName),
        FirstName:  strings.TrimSpace(r.FirstName),
        LastName:   strings.TrimSpace(r.LastName),
        ImageURL:   strings.TrimSpace(r.ImageURL),
    }
}

type profileReq struct {
    syncReq
    Phone       string `json:"phone"`
    College     string `json:"college"`
    YearOfStudy string `json:"yearOfStudy"`
    RollNumber  string `json:"rollNumber"`
    Branch      string `json:"branch"`
}

// Sync records the signed-in user.  201 when a row was created.
func (h *UserHandler) Sync(c echo.Context) error {
    var req syncReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, outcome, err := h.Directory.Sync(ctx, req.input())
    if err != nil {
        return failErr(c, h.Log, err)
    }
    switch outcome {
    case service.SyncCreated:
        return ok(c, http.StatusCreated, "User created successfully", echo.Map{"user": u})
    case service.SyncMerged:
        return ok(c, http.StatusOK, "User linked by email", echo.Map{"user": u})
    default:
        return ok(c, http.StatusOK, "User already exists", echo.Map{"user": u})
    }
}

// CompleteProfile stores the registration details.
func (h *UserHandler) CompleteProfile(c echo.Context) error {
    var req profileReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Directory.CompleteProfile(ctx, service.ProfileInput{
        SyncInput:   req.input(),
        Phone:       strings.TrimSpace(req.Phone),
        College:     strings.TrimSpace(req.College),
        YearOfStudy: strings.TrimSpace(req.YearOfStudy),
        RollNumber:  strings.TrimSpace(req.RollNumber),
        Branch:      strings.TrimSpace(req.Branch),
    })
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Profile completed successfully", echo.Map{"user": u})
}

// Profile returns the user, fetching it from Clerk on first sight.
func (h *UserHandler) Profile(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Directory.EnsureUserExists(ctx, c.Param("clerkUserId"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"user": u})
}

// CheckProfile reports whether the profile exists and is complete.
func (h *UserHandler) CheckProfile(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    st, err := h.Directory.CheckProfile(ctx, c.Param("clerkUserId"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", st)
}

// ClerkWebhook applies svix-signed user lifecycle events.
func (h *UserHandler) ClerkWebhook(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
    if err != nil {
        return fail(c, http.StatusBadRequest, "unreadable body")
    }
    ev, err := h.Verifier.Verify(body, c.Request().Header)
    if errors.Is(err, identity.ErrWebhookNotConfigured) {
        h.Log.Error("clerk webhook received but no secret is configured")
        return fail(c, http.StatusInternalServerError, "webhook secret not configured")
    }
    if err != nil {
        h.Log.Warn("clerk webhook rejected", "err", err)
        return fail(c, http.StatusBadRequest, "invalid webhook signature")
    }

    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Directory.ApplyIdentityEvent(ctx, ev); err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Webhook processed", nil)
}
