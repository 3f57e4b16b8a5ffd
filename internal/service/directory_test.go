package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/service"
)

func TestEnsureUserExistsFetchesOnce(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	u, err := h.dir.EnsureUserExists(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, "asha@example.com", u.Email)
	require.Equal(t, "Asha Rao", u.FullName)

	again, err := h.dir.EnsureUserExists(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
	require.Equal(t, 1, h.profiles.Calls)
}

func TestEnsureUserExistsConcurrent(t *testing.T) {
	h := newHarness(t, true)
	var wg sync.WaitGroup
	ids := make([]uint64, 6)
	errs := make([]error, len(ids))
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := h.dir.EnsureUserExists(context.Background(), "user_2")
			ids[i], errs[i] = u.ID, err
		}()
	}
	wg.Wait()
	for i, id := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, h.store.Users().Count())
}

func TestEnsureUserExistsRelinksByEmail(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	old, _, err := h.dir.Sync(ctx, service.SyncInput{ExternalID: "user_old", Email: "asha@example.com"})
	require.NoError(t, err)

	u, err := h.dir.EnsureUserExists(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, old.ID, u.ID)
	require.Equal(t, "user_1", u.ExternalID)
	require.Equal(t, 1, h.store.Users().Count())
}

func TestSyncOutcomes(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	in := service.SyncInput{ExternalID: "user_9", Email: "nine@example.com", FullName: "Nine"}

	u, outcome, err := h.dir.Sync(ctx, in)
	require.NoError(t, err)
	require.Equal(t, service.SyncCreated, outcome)

	same, outcome, err := h.dir.Sync(ctx, in)
	require.NoError(t, err)
	require.Equal(t, service.SyncExisting, outcome)
	require.Equal(t, u.ID, same.ID)

	merged, outcome, err := h.dir.Sync(ctx, service.SyncInput{ExternalID: "user_9b", Email: "nine@example.com"})
	require.NoError(t, err)
	require.Equal(t, service.SyncMerged, outcome)
	require.Equal(t, u.ID, merged.ID)
	require.Equal(t, "user_9b", merged.ExternalID)
	require.Equal(t, "Nine", merged.FullName)

	_, _, err = h.dir.Sync(ctx, service.SyncInput{ExternalID: "x"})
	require.Equal(t, service.KindValidation, service.KindOf(err))
}

func TestCompleteProfile(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	base := service.SyncInput{ExternalID: "user_1", Email: "asha@example.com", FullName: "Asha Rao"}

	_, err := h.dir.CompleteProfile(ctx, service.ProfileInput{SyncInput: base, Phone: "98200"})
	require.Equal(t, service.KindValidation, service.KindOf(err))

	_, err = h.dir.CompleteProfile(ctx, service.ProfileInput{
		SyncInput: base, Phone: "98200", College: model.HostCollege, YearOfStudy: "TE",
	})
	require.Equal(t, service.KindValidation, service.KindOf(err))

	u, err := h.dir.CompleteProfile(ctx, service.ProfileInput{
		SyncInput: base, Phone: "98200", College: model.HostCollege, YearOfStudy: "TE",
		Branch: "COMP", RollNumber: "42",
	})
	require.NoError(t, err)
	require.True(t, u.ProfileComplete())

	st, err := h.dir.CheckProfile(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, service.ProfileStatus{Exists: true, IsComplete: true}, st)

	st, err = h.dir.CheckProfile(ctx, "user_ghost")
	require.NoError(t, err)
	require.Equal(t, service.ProfileStatus{}, st)
}

func TestApplyIdentityEvent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	first, last := "Cara", "Diaz"
	data := identity.UserData{ID: "user_c", ImageURL: "https://img/c.png", FirstName: &first, LastName: &last}

	// no email: rejected
	err := h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: identity.EventUserCreated, Data: data})
	require.Equal(t, service.KindValidation, service.KindOf(err))

	created := webhookUser(t, "user_c", "cara@example.com", "Cara", "Diaz")
	require.NoError(t, h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: identity.EventUserCreated, Data: created}))
	require.NoError(t, h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: identity.EventUserCreated, Data: created}))
	require.Equal(t, 1, h.store.Users().Count())

	updated := webhookUser(t, "user_c", "cara.d@example.com", "Cara", "")
	require.NoError(t, h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: identity.EventUserUpdated, Data: updated}))
	u, err := h.store.Users().GetByExternalID(ctx, "user_c")
	require.NoError(t, err)
	require.Equal(t, "cara.d@example.com", u.Email)

	require.NoError(t, h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: "session.created"}))

	require.NoError(t, h.dir.ApplyIdentityEvent(ctx, identity.WebhookEvent{Type: identity.EventUserDeleted, Data: identity.UserData{ID: "user_c"}}))
	require.Zero(t, h.store.Users().Count())
}

// webhookUser builds the Clerk user object as it arrives on the wire.
func webhookUser(t *testing.T, id, email, first, last string) identity.UserData {
	t.Helper()
	var u identity.UserData
	raw := `{"id":"` + id + `","primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"` +
		email + `"}],"first_name":"` + first + `","last_name":"` + last + `"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}
