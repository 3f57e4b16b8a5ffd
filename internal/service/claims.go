package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/queue"
	"github.com/esummit/pass-registry/internal/repository"
)

// Claims manages manually asserted out-of-band purchases.
type Claims struct {
	dir         *Directory
	users       UserStore
	claims      ClaimStore
	passes      PassStore
	tx          TxRunner
	events      EventPublisher
	ttl         time.Duration
	autoApprove bool
	log         *slog.Logger
	now         func() time.Time
}

// ClaimsDeps groups the collaborators of Claims.
type ClaimsDeps struct {
	Directory   *Directory
	Users       UserStore
	Claims      ClaimStore
	Passes      PassStore
	Tx          TxRunner
	Events      EventPublisher
	TTL         time.Duration
	AutoApprove bool
	Logger      *slog.Logger
}

func NewClaims(d ClaimsDeps) *Claims {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	ev := d.Events
	if ev == nil {
		ev = queue.Discard{}
	}
	return &Claims{
		dir:         d.Directory,
		users:       d.Users,
		claims:      d.Claims,
		passes:      d.Passes,
		tx:          d.Tx,
		events:      ev,
		ttl:         ttl,
		autoApprove: d.AutoApprove,
		log:         orDiscard(d.Logger),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ClaimInput is the body of a pass-claim submission.
type ClaimInput struct {
	ExternalID   string
	PassType     model.PassType
	BookingRef   string
	OrderRef     string
	TicketNumber string
}

// ClaimResult is a claim plus the pass it produced, if approved.
type ClaimResult struct {
	Claim model.PassClaim `json:"claim"`
	Pass  *model.Pass     `json:"pass,omitempty"`
}

// Submit records a claim.  With auto-approval enabled the claim is turned
// into a pass immediately.
func (c *Claims) Submit(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	if strings.TrimSpace(in.ExternalID) == "" || in.PassType == "" {
		return ClaimResult{}, validation("clerkUserId and passType are required")
	}
	if !in.PassType.Valid() {
		return ClaimResult{}, validation("Invalid pass type")
	}
	if in.BookingRef == "" && in.OrderRef == "" && in.TicketNumber == "" {
		return ClaimResult{}, validation("a booking ID, order ID or ticket number is required")
	}
	u, err := c.dir.EnsureUserExists(ctx, in.ExternalID)
	if err != nil {
		return ClaimResult{}, err
	}
	if _, err := c.passes.ActiveByUser(ctx, u.ID); err == nil {
		return ClaimResult{}, ErrAlreadyHasPass
	} else if !errors.Is(err, repository.ErrNotFound) {
		return ClaimResult{}, internal("failed to check existing passes", err)
	}

	now := c.now()
	cl := model.PassClaim{
		ID:           uuid.NewString(),
		UserID:       u.ID,
		ExternalID:   u.ExternalID,
		Email:        u.Email,
		FullName:     u.FullName,
		PassType:     in.PassType,
		BookingRef:   optional(in.BookingRef),
		OrderRef:     optional(in.OrderRef),
		TicketNumber: optional(in.TicketNumber),
		Status:       model.ClaimPending,
		ExpiresAt:    now.Add(c.ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.claims.Create(ctx, &cl); err != nil {
		return ClaimResult{}, internal("Failed to submit pass claim", err)
	}
	c.log.Info("pass claim submitted", "claim_id", cl.ID, "user_id", u.ID, "pass_type", in.PassType)

	if !c.autoApprove {
		return ClaimResult{Claim: cl}, nil
	}
	return c.Approve(ctx, cl.ID)
}

// Approve turns a pending claim into a pass using the same slot check as
// payment completion.
func (c *Claims) Approve(ctx context.Context, claimID string) (ClaimResult, error) {
	var res ClaimResult
	expired := false
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		cl, err := c.claims.GetByIDForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if cl.Status != model.ClaimPending {
			return ErrClaimNotPending
		}
		if !c.now().Before(cl.ExpiresAt) {
			expired = true
			return c.claims.UpdateStatus(ctx, cl.ID, model.ClaimExpired, nil)
		}
		if _, held, err := lockPassSlot(ctx, c.users, c.passes, cl.UserID); err != nil {
			return err
		} else if held {
			return ErrAlreadyHasPass
		}

		p := model.Pass{
			UserID:     cl.UserID,
			PassType:   cl.PassType,
			Price:      decimal.Zero,
			Status:     model.PassActive,
			OrderID:    cl.OrderRef,
			BookingRef: firstRef(cl),
		}
		if err := insertPass(ctx, c.passes, &p); err != nil {
			return err
		}
		if err := c.claims.UpdateStatus(ctx, cl.ID, model.ClaimApproved, &p.ID); err != nil {
			return err
		}
		cl.Status = model.ClaimApproved
		cl.PassID = &p.ID
		now := c.now()
		p.CreatedAt, p.UpdatedAt = now, now
		res = ClaimResult{Claim: cl, Pass: &p}
		return nil
	})
	if expired && err == nil {
		return ClaimResult{}, ErrClaimNotPending
	}
	if err := c.claimErr(err, "Failed to approve pass claim"); err != nil {
		return ClaimResult{}, err
	}

	p := res.Pass
	c.log.Info("pass claim approved", "claim_id", claimID, "user_id", p.UserID, "pass_id", p.PassCode)
	ev := queue.PassIssuedEvent{
		PassID:   p.ID,
		PassCode: p.PassCode,
		PassType: string(p.PassType),
		UserID:   p.UserID,
		Email:    res.Claim.Email,
		Price:    p.Price.StringFixed(2),
		Source:   "claim",
		IssuedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.OrderID != nil {
		ev.OrderID = *p.OrderID
	}
	if err := c.events.PublishPassIssued(ctx, ev); err != nil {
		c.log.Warn("pass.issued publish failed", "pass_id", p.PassCode, "err", err)
	}
	return res, nil
}

// Reject closes a pending claim without issuing a pass.
func (c *Claims) Reject(ctx context.Context, claimID string) (model.PassClaim, error) {
	return c.close(ctx, claimID, "", model.ClaimRejected)
}

// Cancel lets the owner withdraw a pending claim.
func (c *Claims) Cancel(ctx context.Context, claimID, externalID string) (model.PassClaim, error) {
	if strings.TrimSpace(externalID) == "" {
		return model.PassClaim{}, validation("clerkUserId is required")
	}
	return c.close(ctx, claimID, externalID, model.ClaimCancelled)
}

func (c *Claims) close(ctx context.Context, claimID, owner string, status model.ClaimStatus) (model.PassClaim, error) {
	var out model.PassClaim
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		cl, err := c.claims.GetByIDForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if owner != "" && cl.ExternalID != owner {
			return repository.ErrNotFound
		}
		if cl.Status != model.ClaimPending {
			return ErrClaimNotPending
		}
		if err := c.claims.UpdateStatus(ctx, cl.ID, status, nil); err != nil {
			return err
		}
		cl.Status = status
		out = cl
		return nil
	})
	if err := c.claimErr(err, "Failed to update pass claim"); err != nil {
		return model.PassClaim{}, err
	}
	c.log.Info("pass claim closed", "claim_id", claimID, "status", status)
	return out, nil
}

// ListByUser returns the user's claims after expiring stale ones.
func (c *Claims) ListByUser(ctx context.Context, externalID string) ([]model.PassClaim, error) {
	u, err := c.dir.EnsureUserExists(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if n, err := c.claims.ExpirePending(ctx, u.ID); err != nil {
		return nil, internal("Failed to fetch pass claims", err)
	} else if n > 0 {
		c.log.Info("pass claims expired", "user_id", u.ID, "count", n)
	}
	list, err := c.claims.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, internal("Failed to fetch pass claims", err)
	}
	return list, nil
}

func (c *Claims) claimErr(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrClaimNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, ErrClaimNotPending):
		return ErrClaimNotPending
	case errors.Is(err, ErrAlreadyHasPass), errors.Is(err, errLostRace):
		return ErrAlreadyHasPass
	default:
		return internal(msg, err)
	}
}

func firstRef(cl model.PassClaim) *string {
	for _, r := range []*string{cl.BookingRef, cl.OrderRef, cl.TicketNumber} {
		if r != nil && *r != "" {
			return r
		}
	}
	return nil
}
