// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit-log consumer.
package queue

// PassIssuedQueue is the durable queue carrying PassIssuedEvent messages.
const PassIssuedQueue = "pass.issued"

// PassIssuedEvent is published once a pass has been committed, whichever
// path issued it.  It carries enough for downstream consumers to log or
// notify without querying the primary database.
type PassIssuedEvent struct {
    PassID        string `json:"pass_id"`
    PassCode      string `json:"pass_code"`
    PassType      string `json:"pass_type"`
    UserID        uint64 `json:"user_id"`
    Email         string `json:"email"`
    Price         string `json:"price"`
    Currency      string `json:"currency"`
    TransactionID string `json:"transaction_id,omitempty"`
    OrderID       string `json:"order_id,omitempty"`
    Source        string `json:"source"`
    IssuedAt      string `json:"issued_at"`
}
