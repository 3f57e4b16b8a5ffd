package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PassType is the enumerated tier of a conference pass.
type PassType string

const (
    PassPixel      PassType = "Pixel Pass"
    PassSilicon    PassType = "Silicon Pass"
    PassQuantum    PassType = "Quantum Pass"
    PassExhibitors PassType = "Exhibitors Pass"
    PassStudent    PassType = "Thakur Student Pass"
)

// PassTypes lists every tier in catalog order.
var PassTypes = []PassType{PassPixel, PassSilicon, PassQuantum, PassExhibitors, PassStudent}

// Valid reports whether t is a known tier.
func (t PassType) Valid() bool {
    for _, p := range PassTypes {
        if p == t {
            return true
        }
    }
    return false
}

// PassStatus is the lifecycle state of a pass.
type PassStatus string

const (
    PassActive    PassStatus = "Active"
    PassCancelled PassStatus = "Cancelled"
    PassRefunded  PassStatus = "Refunded"
)

// Counts reports whether a pass in this status occupies the user's single
// pass slot.
func (s PassStatus) Counts() bool { return s == PassActive }

// Pass represents a confirmed conference credential stored in `passes`.
//
// Fields:
//  ID            – uuid primary key.
//  PassCode      – human-facing identifier printed on the credential.
//  UserID        – owner.
//  PassType      – tier.
//  Price         – amount paid.
//  Status        – Active, Cancelled or Refunded.
//  TransactionID – originating payment attempt (nil for claim-issued passes).
//  OrderID, TicketID – remote references when issued from a payment.
//  BookingRef    – out-of-band booking reference when issued from a claim.
type Pass struct {
    ID            string          `json:"id"`
    PassCode      string          `json:"passId"`
    UserID        uint64          `json:"userId"`
    PassType      PassType        `json:"passType"`
    Price         decimal.Decimal `json:"price"`
    Status        PassStatus      `json:"status"`
    TransactionID *string         `json:"transactionId,omitempty"`
    OrderID       *string         `json:"konfhubOrderId,omitempty"`
    TicketID      *string         `json:"konfhubTicketId,omitempty"`
    BookingRef    *string         `json:"bookingId,omitempty"`
    CreatedAt     time.Time       `json:"createdAt"`
    UpdatedAt     time.Time       `json:"updatedAt"`
}

// PassSummary is the subset of a pass embedded in transaction listings.
type PassSummary struct {
    PassCode string     `json:"passId"`
    PassType PassType   `json:"passType"`
    Status   PassStatus `json:"status"`
}
