package ticketing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderStatus is the provider-side state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// CustomerInfo identifies the buyer on the provider side.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderMetadata is embedded in the remote order so an order id alone is
// enough to trace a purchase back to its registrant and pass tier.
type OrderMetadata struct {
	ClerkUserID       string `json:"clerkUserId"`
	PassType          string `json:"passType"`
	InvoiceNumber     string `json:"invoiceNumber"`
	TransactionNumber string `json:"transactionNumber"`
}

// OrderRequest is the body of a create-order call.
type OrderRequest struct {
	EventID      string        `json:"eventId,omitempty"`
	TicketTypeID string        `json:"ticketTypeId,omitempty"`
	Quantity     int           `json:"quantity"`
	Customer     CustomerInfo  `json:"customerInfo"`
	Metadata     OrderMetadata `json:"metadata"`
}

// IssuedTicket is one ticket attached to an order.
type IssuedTicket struct {
	ID           string `json:"id"`
	TicketNumber string `json:"ticketNumber"`
	QRCode       string `json:"qrCode,omitempty"`
}

// Order is a snapshot of a remote order.
type Order struct {
	OrderID     string          `json:"orderId"`
	TicketID    string          `json:"ticketId,omitempty"`
	PaymentID   string          `json:"paymentId,omitempty"`
	Status      OrderStatus     `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Tickets     []IssuedTicket  `json:"tickets,omitempty"`
	PaymentURL  string          `json:"paymentUrl,omitempty"`
	CheckoutURL string          `json:"checkoutUrl,omitempty"`
}

// CancelResult is returned by CancelOrder.
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookEventType names a provider push notification.
type WebhookEventType string

const (
	EventOrderCompleted WebhookEventType = "order.completed"
	EventOrderCancelled WebhookEventType = "order.cancelled"
	EventTicketIssued   WebhookEventType = "ticket.issued"
)

// WebhookEvent is the decoded body of a provider webhook.  Only the
// identifiers are trusted; business fields are re-read with GetOrder.
type WebhookEvent struct {
	Event     WebhookEventType `json:"event"`
	OrderID   string           `json:"orderId"`
	TicketID  string           `json:"ticketId,omitempty"`
	PaymentID string           `json:"paymentId,omitempty"`
	Status    string           `json:"status,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

// wireOrder accepts both id spellings the API has used.
type wireOrder struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	TicketID    string          `json:"ticketId"`
	PaymentID   string          `json:"paymentId"`
	Status      OrderStatus     `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Tickets     []IssuedTicket  `json:"tickets"`
	PaymentURL  string          `json:"paymentUrl"`
	CheckoutURL string          `json:"checkoutUrl"`
}

func (w wireOrder) order() Order {
	o := Order{
		OrderID:     w.ID,
		TicketID:    w.TicketID,
		PaymentID:   w.PaymentID,
		Status:      w.Status,
		Amount:      w.Amount,
		Currency:    w.Currency,
		Tickets:     w.Tickets,
		PaymentURL:  w.PaymentURL,
		CheckoutURL: w.CheckoutURL,
	}
	if o.OrderID == "" {
		o.OrderID = w.OrderID
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.CheckoutURL == "" {
		o.CheckoutURL = w.PaymentURL
	}
	return o
}
