package handler

import (
    "io"
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/esummit/pass-registry/internal/model"
    "github.com/esummit/pass-registry/internal/service"
    "github.com/esummit/pass-registry/internal/ticketing"
)

// maxWebhookBody caps the provider payload read before verification.
const maxWebhookBody = 1 << 20

// PaymentHandler exposes the reconciliation engine under /v1/payment.
type PaymentHandler struct {
    Engine *service.Engine
    Log    *slog.Logger
}

func NewPaymentHandler(e *service.Engine, log *slog.Logger) *PaymentHandler {
    return &PaymentHandler{Engine: e, Log: orDiscard(log)}
}

// ----- DTOs -----

type createOrderReq struct {
    ClerkUserID string          `json:"clerkUserId"`
    PassType    string          `json:"passType"`
    Price       decimal.Decimal `json:"price"`
}

type verifyReq struct {
    OrderID   string `json:"orderId"`
    TicketID  string `json:"ticketId"`
    PaymentID string `json:"paymentId"`
}

type paymentFailedReq struct {
    OrderID string `json:"orderId"`
    Error   string `json:"error"`
}

type cancelReq struct {
    TransactionID string `json:"transactionId"`
}

// CreateOrder opens a gateway order for a registrant.
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
    var req createOrderReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    res, err := h.Engine.CreateOrder(ctx, service.CreateOrderInput{
        ExternalID: strings.TrimSpace(req.ClerkUserID),
        PassType:   model.PassType(strings.TrimSpace(req.PassType)),
        Price:      req.Price,
    })
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusCreated, "Order created successfully", res)
}

// VerifyAndCreatePass confirms a completed payment and issues the pass.
func (h *PaymentHandler) VerifyAndCreatePass(c echo.Context) error {
    var req verifyReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    res, err := h.Engine.VerifyAndCreatePass(ctx, service.VerifyInput{
        OrderID:   strings.TrimSpace(req.OrderID),
        TicketID:  strings.TrimSpace(req.TicketID),
        PaymentID: strings.TrimSpace(req.PaymentID),
    })
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusCreated, "Payment verified and pass created successfully", res)
}

// PaymentFailed records a failure reported by the checkout page.
func (h *PaymentHandler) PaymentFailed(c echo.Context) error {
    var req paymentFailedReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    id, err := h.Engine.PaymentFailed(ctx, strings.TrimSpace(req.OrderID), req.Error)
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Payment failure recorded", echo.Map{"transactionId": id})
}

// Webhook receives gateway notifications.  The raw body is verified
// against the signature header before anything is parsed.
func (h *PaymentHandler) Webhook(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
    if err != nil {
        return fail(c, http.StatusBadRequest, "unreadable body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    sig := c.Request().Header.Get(ticketing.SignatureHeader)
    if err := h.Engine.HandleWebhook(ctx, body, sig); err != nil {
        return failErr(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{})
}

// Cancel withdraws a pending order.
func (h *PaymentHandler) Cancel(c echo.Context) error {
    var req cancelReq
    if err := c.Bind(&req); err != nil {
        return fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    if err := h.Engine.Cancel(ctx, strings.TrimSpace(req.TransactionID)); err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Order cancelled successfully", nil)
}

// Transaction returns one transaction with owner and pass summary.
func (h *PaymentHandler) Transaction(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    t, err := h.Engine.GetTransaction(ctx, c.Param("id"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"transaction": t})
}

// UserTransactions lists a registrant's payment attempts, newest first.
func (h *PaymentHandler) UserTransactions(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Engine.ListUserTransactions(ctx, c.Param("clerkUserId"))
    if err != nil {
        return failErr(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "", echo.Map{"transactions": list})
}
