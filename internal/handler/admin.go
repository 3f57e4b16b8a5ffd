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

// AdminHandler serves the operator endpoints behind JWTAuth.
type AdminHandler struct {
    Engine *service.Engine
    Claims *service.Claims
    Log    *slog.Logger
}

func NewAdminHandler(e *service.Engine, cl *service.Claims, log *slog.Logger) *AdminHandler {
    return &AdminHandler{Engine: e, Claims: cl, Log: orDiscard(log)}
}

// Transactions lists transactions in one status, refund_pending by default.
func (h *AdminHandler) Transactions(c echo.Context) error {
    status := model.TransactionStatus(strings.TrimSpace(c.QueryParam("status")))
    if status == "" {
        status = model.TxRefundPending
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Engine.ListByStatus(ctx, status)
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"transactions": list})
}

type passStatusReq struct {
    Status string `json:"status"`
}

// UpdatePassStatus cancels, refunds or reactivates a pass.
func (h *AdminHandler) UpdatePassStatus(c echo.Context) error {
    var req passStatusReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    p, err := h.Engine.UpdatePassStatus(ctx, c.Param("id"), model.PassStatus(strings.TrimSpace(req.Status)))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    h.Log.Info("admin updated pass", "admin_id", c.Get(middleware.CtxAdminID), "pass_id", p.PassCode, "status", p.Status)
    return ok(c, http.StatusOK, "Pass updated", echo.Map{"pass": p})
}

// ApproveClaim turns a pending claim into a pass.
func (h *AdminHandler) ApproveClaim(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    res, err := h.Claims.Approve(ctx, c.Param("id"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Pass claim approved", res)
}

// RejectClaim closes a pending claim.
func (h *AdminHandler) RejectClaim(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    cl, err := h.Claims.Reject(ctx, c.Param("id"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Pass claim rejected", echo.Map{"claim": cl})
}
