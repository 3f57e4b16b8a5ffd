package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/esummit/pass-registry/internal/handler"
)

// RegisterRoutes registers the probes.  /healthz only proves the process
// is up; /readyz also pings MySQL and reports Redis.
func RegisterRoutes(e *echo.Echo, db *sql.DB, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, rdb))
}

// RegisterPayment registers the payment surface under /v1/payment.  The
// limiter guards every route except the provider webhook, which is
// authenticated by signature and must never be throttled into retries.
func RegisterPayment(e *echo.Echo, h *handler.PaymentHandler, limiter echo.MiddlewareFunc) {
	e.POST("/v1/payment/webhook", h.Webhook)

	g := e.Group("/v1/payment")
	if limiter != nil {
		g.Use(limiter)
	}
	g.POST("/create-order", h.CreateOrder)
	g.POST("/verify-and-create-pass", h.VerifyAndCreatePass)
	g.POST("/payment-failed", h.PaymentFailed)
	g.POST("/cancel", h.Cancel)
	g.GET("/transaction/:id", h.Transaction)
	g.GET("/user/:clerkUserId/transactions", h.UserTransactions)
}

// RegisterUsers registers the user directory and the Clerk webhook.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler) {
	g := e.Group("/v1/users")
	g.POST("/sync", h.Sync)
	g.POST("/complete-profile", h.CompleteProfile)
	g.GET("/profile/:clerkUserId", h.Profile)
	g.GET("/check-profile/:clerkUserId", h.CheckProfile)

	e.POST("/v1/webhooks/clerk", h.ClerkWebhook)
}

// RegisterPasses registers pass listings and the claim endpoints.  The
// catalog is static and served through the response cache when one is
// configured.
func RegisterPasses(e *echo.Echo, h *handler.PassHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/passes")
	g.GET("/user/:clerkUserId", h.UserPasses)
	if cache != nil {
		g.GET("/types", h.Types, cache)
	} else {
		g.GET("/types", h.Types)
	}

	c := e.Group("/v1/pass-claims")
	c.POST("", h.SubmitClaim)
	c.GET("/user/:clerkUserId", h.UserClaims)
	c.DELETE("/:id", h.CancelClaim)
}
