package handler

import (
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/esummit/pass-registry/internal/middleware"
    "github.com/esummit/pass-registry/internal/model"
    "github.com/esummit/pass-registry/internal/service"
)

// PassHandler serves pass listings and pending claims.
type PassHandler struct {
    Engine *service.Engine
    Claims *service.Claims
    Log    *slog.Logger
}

func NewPassHandler(e *service.Engine, cl *service.Claims, log *slog.Logger) *PassHandler {
    return &PassHandler{Engine: e, Claims: cl, Log: orDiscard(log)}
}

// UserPasses lists every pass the registrant has held.
func (h *PassHandler) UserPasses(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Engine.ListUserPasses(ctx, c.Param("clerkUserId"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"passes": list})
}

// Types lists the pass catalog.
func (h *PassHandler) Types(c echo.Context) error {
    return ok(c, http.StatusOK, "", echo.Map{"passTypes": service.PassCatalog()})
}

type claimReq struct {
    ClerkUserID  string `json:"clerkUserId"`
    PassType     string `json:"passType"`
    BookingID    string `json:"bookingId"`
    OrderID      string `json:"konfhubOrderId"`
    TicketNumber string `json:"ticketNumber"`
}

type ownerReq struct {
    ClerkUserID string `json:"clerkUserId"`
}

// SubmitClaim records an out-of-band purchase.  201 either way; the data
// carries the pass when the claim was approved immediately.
func (h *PassHandler) SubmitClaim(c echo.Context) error {
    var req claimReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    res, err := h.Claims.Submit(ctx, service.ClaimInput{
        ExternalID:   strings.TrimSpace(req.ClerkUserID),
        PassType:     model.PassType(strings.TrimSpace(req.PassType)),
        BookingRef:   strings.TrimSpace(req.BookingID),
        OrderRef:     strings.TrimSpace(req.OrderID),
        TicketNumber: strings.TrimSpace(req.TicketNumber),
    })
    if err != nil {
        return failErr(c, h.Log, err)
    }
    msg := "Pass claim submitted"
    if res.Pass != nil {
        msg = "Pass claim approved"
    }
    return ok(c, http.StatusCreated, msg, res)
}

// UserClaims lists the registrant's claims.
func (h *PassHandler) UserClaims(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Claims.ListByUser(ctx, c.Param("clerkUserId"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"claims": list})
}

// CancelClaim lets the owner withdraw a pending claim.
func (h *PassHandler) CancelClaim(c echo.Context) error {
    var req ownerReq
    _ = c.Bind(&req) // DELETE bodies are optional; fall back to the header
    owner := strings.TrimSpace(req.ClerkUserID)
    if owner == "" {
        owner = strings.TrimSpace(c.Request().Header.Get(middleware.ClerkUserHeader))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    cl, err := h.Claims.Cancel(ctx, c.Param("id"), owner)
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Pass claim cancelled", echo.Map{"claim": cl})
}
