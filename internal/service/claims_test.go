package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/service"
)

func TestClaimAutoApproveIssuesFreePass(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	res, err := h.claims.Submit(ctx, service.ClaimInput{
		ExternalID: "user_1", PassType: model.PassSilicon, BookingRef: "BK-77",
	})
	require.NoError(t, err)
	require.Equal(t, model.ClaimApproved, res.Claim.Status)
	require.NotNil(t, res.Pass)
	require.True(t, res.Pass.Price.IsZero())
	require.Equal(t, model.PassSilicon, res.Pass.PassType)
	require.Equal(t, "BK-77", *res.Pass.BookingRef)
	require.Nil(t, res.Pass.TransactionID)
	require.Equal(t, res.Pass.ID, *res.Claim.PassID)

	evs := h.events.Published()
	require.Len(t, evs, 1)
	require.Equal(t, "claim", evs[0].Source)

	// one pass per user holds across both paths
	_, err = h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, TicketNumber: "T-1"})
	require.ErrorIs(t, err, service.ErrAlreadyHasPass)
	_, err = h.engine.CreateOrder(ctx, service.CreateOrderInput{ExternalID: "user_1", PassType: model.PassPixel, Price: price(499)})
	require.ErrorIs(t, err, service.ErrAlreadyHasPass)
}

func TestClaimValidation(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	for _, in := range []service.ClaimInput{
		{PassType: model.PassPixel, BookingRef: "B"},
		{ExternalID: "user_1", BookingRef: "B"},
		{ExternalID: "user_1", PassType: "VIP", BookingRef: "B"},
		{ExternalID: "user_1", PassType: model.PassPixel},
	} {
		_, err := h.claims.Submit(ctx, in)
		require.Equal(t, service.KindValidation, service.KindOf(err), "%+v", in)
	}
}

func TestClaimManualReview(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	res, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, OrderRef: "ord_x"})
	require.NoError(t, err)
	require.Equal(t, model.ClaimPending, res.Claim.Status)
	require.Nil(t, res.Pass)

	approved, err := h.claims.Approve(ctx, res.Claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimApproved, approved.Claim.Status)
	require.Equal(t, "ord_x", *approved.Pass.OrderID)

	_, err = h.claims.Approve(ctx, res.Claim.ID)
	require.ErrorIs(t, err, service.ErrClaimNotPending)
	_, err = h.claims.Reject(ctx, res.Claim.ID)
	require.ErrorIs(t, err, service.ErrClaimNotPending)
	_, err = h.claims.Approve(ctx, "missing")
	require.ErrorIs(t, err, service.ErrClaimNotFound)
}

func TestClaimApproveBlockedByPaidPass(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	res, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, BookingRef: "B1"})
	require.NoError(t, err)

	o := h.order(t, "user_1", model.PassQuantum, 999)
	h.pay(o.OrderID, 999)
	_, err = h.engine.VerifyAndCreatePass(ctx, service.VerifyInput{OrderID: o.OrderID})
	require.NoError(t, err)

	_, err = h.claims.Approve(ctx, res.Claim.ID)
	require.ErrorIs(t, err, service.ErrAlreadyHasPass)
	require.Equal(t, 1, h.store.Passes().Count(h.userID(t, "user_1")))
}

func TestClaimRejectAndCancel(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	a, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, BookingRef: "B1"})
	require.NoError(t, err)
	b, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, BookingRef: "B2"})
	require.NoError(t, err)

	rejected, err := h.claims.Reject(ctx, a.Claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimRejected, rejected.Status)

	_, err = h.claims.Cancel(ctx, b.Claim.ID, "user_2")
	require.ErrorIs(t, err, service.ErrClaimNotFound)
	_, err = h.claims.Cancel(ctx, b.Claim.ID, "")
	require.Equal(t, service.KindValidation, service.KindOf(err))

	cancelled, err := h.claims.Cancel(ctx, b.Claim.ID, "user_1")
	require.NoError(t, err)
	require.Equal(t, model.ClaimCancelled, cancelled.Status)
}

func TestClaimExpiry(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	stale, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, BookingRef: "B1"})
	require.NoError(t, err)
	fresh, err := h.claims.Submit(ctx, service.ClaimInput{ExternalID: "user_1", PassType: model.PassPixel, BookingRef: "B2"})
	require.NoError(t, err)
	h.store.Claims().Backdate(stale.Claim.ID)

	list, err := h.claims.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]model.ClaimStatus{}
	for _, c := range list {
		byID[c.ID] = c.Status
	}
	require.Equal(t, model.ClaimExpired, byID[stale.Claim.ID])
	require.Equal(t, model.ClaimPending, byID[fresh.Claim.ID])

	// approval also refuses a claim that ran out before anyone listed it
	h.store.Claims().Backdate(fresh.Claim.ID)
	_, err = h.claims.Approve(ctx, fresh.Claim.ID)
	require.ErrorIs(t, err, service.ErrClaimNotPending)
	c, err := h.store.Claims().GetByID(ctx, fresh.Claim.ID)
	require.NoError(t, err)
	require.Equal(t, model.ClaimExpired, c.Status)
}
