package model

import "time"

// ClaimStatus is the state of a user-asserted pass claim.
type ClaimStatus string

const (
    ClaimPending   ClaimStatus = "pending"
    ClaimApproved  ClaimStatus = "approved"
    ClaimRejected  ClaimStatus = "rejected"
    ClaimExpired   ClaimStatus = "expired"
    ClaimCancelled ClaimStatus = "cancelled"
)

// PassClaim records a manually entered out-of-band purchase awaiting
// verification.  At least one of BookingRef, OrderRef and TicketNumber is set.
type PassClaim struct {
    ID           string      `json:"id"`
    UserID       uint64      `json:"userId"`
    ExternalID   string      `json:"clerkUserId"`
    Email        string      `json:"email"`
    FullName     string      `json:"fullName,omitempty"`
    PassType     PassType    `json:"passType"`
    BookingRef   *string     `json:"bookingId,omitempty"`
    OrderRef     *string     `json:"konfhubOrderId,omitempty"`
    TicketNumber *string     `json:"ticketNumber,omitempty"`
    Status       ClaimStatus `json:"status"`
    PassID       *string     `json:"passId,omitempty"`
    ExpiresAt    time.Time   `json:"expiresAt"`
    CreatedAt    time.Time   `json:"createdAt"`
    UpdatedAt    time.Time   `json:"updatedAt"`
}
