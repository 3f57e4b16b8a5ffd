package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// TransactionStatus is the state of one payment attempt.  Completed and
// refund_pending settle a paid order.  Failed and cancelled only record what
// the client saw; a later gateway-confirmed payment still settles them.
type TransactionStatus string

const (
    TxPending       TransactionStatus = "pending"
    TxCompleted     TransactionStatus = "completed"
    TxFailed        TransactionStatus = "failed"
    TxCancelled     TransactionStatus = "cancelled"
    TxRefundPending TransactionStatus = "refund_pending"
)

// Settled reports whether a paid order has already been resolved, either
// into a pass or into the refund queue.
func (s TransactionStatus) Settled() bool {
    return s == TxCompleted || s == TxRefundPending
}

// Transaction mirrors a row in `transactions`.
type Transaction struct {
    ID                string            `json:"id"`
    UserID            uint64            `json:"userId"`
    PassID            *string           `json:"passId,omitempty"`
    InvoiceNumber     string            `json:"invoiceNumber"`
    TransactionNumber string            `json:"transactionNumber"`
    OrderID           string            `json:"konfhubOrderId"`
    TicketID          *string           `json:"konfhubTicketId,omitempty"`
    PaymentID         *string           `json:"konfhubPaymentId,omitempty"`
    Amount            decimal.Decimal   `json:"amount"`
    Currency          string            `json:"currency"`
    Status            TransactionStatus `json:"status"`
    PaymentMethod     string            `json:"paymentMethod"`
    Meta              TransactionMeta   `json:"metadata"`
    CreatedAt         time.Time         `json:"createdAt"`
    UpdatedAt         time.Time         `json:"updatedAt"`
}

// TransactionDetail is a transaction joined with its owner and pass, as
// returned by the status endpoints.
type TransactionDetail struct {
    Transaction
    User *UserSummary `json:"user,omitempty"`
    Pass *PassSummary `json:"pass,omitempty"`
}

// MetaVersion is bumped whenever the shape of TransactionMeta changes.
const MetaVersion = 1

// TransactionMeta is the structured metadata column.  Each lifecycle stage
// owns its own record; a nil record means the stage was never reached.
type TransactionMeta struct {
    Version   int                 `json:"version"`
    PassType  PassType            `json:"passType"`
    Created   *OrderCreatedMeta   `json:"created,omitempty"`
    Completed *OrderCompletedMeta `json:"completed,omitempty"`
    Failed    *OrderFailedMeta    `json:"failed,omitempty"`
    Cancelled *OrderCancelledMeta `json:"cancelled,omitempty"`
    Ticket    *TicketIssuedMeta   `json:"ticket,omitempty"`
    Refund    *RefundMeta         `json:"refund,omitempty"`
}

type OrderCreatedMeta struct {
    At          time.Time `json:"at"`
    CheckoutURL string    `json:"checkoutUrl,omitempty"`
}

// CompletionSource names which signal completed the order.
type CompletionSource string

const (
    SourceVerify  CompletionSource = "verify"
    SourceWebhook CompletionSource = "webhook"
)

type OrderCompletedMeta struct {
    At       time.Time        `json:"at"`
    PassCode string           `json:"passId"`
    Source   CompletionSource `json:"source"`
}

type OrderFailedMeta struct {
    At             time.Time `json:"at"`
    Reason         string    `json:"reason"`
    ProviderStatus string    `json:"providerStatus,omitempty"`
}

type OrderCancelledMeta struct {
    At     time.Time `json:"at"`
    Source string    `json:"source"`
}

type TicketIssuedMeta struct {
    At       time.Time `json:"at"`
    TicketID string    `json:"ticketId"`
}

type RefundMeta struct {
    At       time.Time `json:"at"`
    Reason   string    `json:"reason"`
    Existing string    `json:"existingPassId,omitempty"`
}
