// Package ticketing is the only integration point with the KonfHub
// ticketing and payment API.  The client holds no state beyond its
// configuration; it never retries, so retry policy stays with callers.
package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when the provider omits a currency.
const DefaultCurrency = "INR"

const apiVersion = "1.0"

// ErrInvalidRequest is returned before any network call when an order
// request lacks a quantity or customer email.
var ErrInvalidRequest = errors.New("ticketing: quantity and customer email are required")

// Error wraps a failed provider call.  Message carries the upstream
// explanation when the provider returned one.
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("ticketing: ")
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	// AllowUnsigned accepts every webhook when WebhookSecret is empty.
	AllowUnsigned bool
	Timeout       time.Duration
}

// Client talks to the provider's REST API.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret []byte
	allowUnsigned bool
	http          *http.Client
	log           *slog.Logger
}

// New constructs a Client.  A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.APIKey == "" {
		logger.Warn("konfhub api key not configured")
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: []byte(cfg.WebhookSecret),
		allowUnsigned: cfg.AllowUnsigned,
		http:          &http.Client{Timeout: timeout},
		log:           logger,
	}
}

// CreateOrder creates a remote order.  On any error the caller must assume
// no order exists.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Quantity <= 0 || strings.TrimSpace(req.Customer.Email) == "" {
		return Order{}, ErrInvalidRequest
	}
	c.log.Info("creating konfhub order", "email", req.Customer.Email, "quantity", req.Quantity)

	var w wireOrder
	if err := c.do(ctx, "create order", http.MethodPost, "/v1/orders", req, &w); err != nil {
		return Order{}, err
	}
	o := w.order()
	if o.OrderID == "" {
		return Order{}, &Error{Op: "create order", Message: "response carried no order id"}
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	if o.Amount.IsZero() && !w.Price.IsZero() {
		o.Amount = w.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}
	c.log.Info("konfhub order created", "order_id", o.OrderID)
	return o, nil
}

// GetOrder fetches the live state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	c.log.Debug("fetching konfhub order", "order_id", orderID)
	var w wireOrder
	if err := c.do(ctx, "get order", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &w); err != nil {
		return Order{}, err
	}
	o := w.order()
	if o.OrderID == "" {
		o.OrderID = orderID
	}
	return o, nil
}

// CancelOrder cancels an order on the provider side.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (CancelResult, error) {
	c.log.Info("cancelling konfhub order", "order_id", orderID)
	if err := c.do(ctx, "cancel order", http.MethodPost, "/v1/orders/"+url.PathEscape(orderID)+"/cancel", nil, nil); err != nil {
		return CancelResult{}, err
	}
	return CancelResult{Success: true, Message: "Order cancelled successfully"}, nil
}

// GetTicket returns the raw ticket document.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get ticket", http.MethodGet, "/v1/tickets/"+url.PathEscape(ticketID), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-API-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("konfhub request failed", "op", op, "err", err)
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		c.log.Error("konfhub request rejected", "op", op, "status", resp.StatusCode, "message", msg)
		return &Error{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
