package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/repository"
)

// Directory keeps a local User for every external identity the system
// encounters.  Email is the durable merge key: a record found by email is
// relinked to the new external id instead of duplicated.
type Directory struct {
	users    UserStore
	profiles ProfileSource
	log      *slog.Logger
}

func NewDirectory(users UserStore, profiles ProfileSource, logger *slog.Logger) *Directory {
	return &Directory{users: users, profiles: profiles, log: orDiscard(logger)}
}

// EnsureUserExists resolves externalID to a local user, fetching the profile
// from the identity provider when no record is linked yet.  It is safe to
// call concurrently for the same id: a duplicate-key insert falls back to
// re-reading the winner's row.
func (d *Directory) EnsureUserExists(ctx context.Context, externalID string) (model.User, error) {
	if strings.TrimSpace(externalID) == "" {
		return model.User{}, validation("clerkUserId is required")
	}
	u, err := d.users.GetByExternalID(ctx, externalID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, internal("failed to load user", err)
	}

	d.log.Info("user not found locally, fetching from identity provider", "clerk_user_id", externalID)
	p, err := d.profiles.GetUser(ctx, externalID)
	if err != nil {
		d.log.Warn("identity provider lookup failed", "clerk_user_id", externalID, "err", err)
		return model.User{}, &Error{Kind: KindNotFound, Message: ErrUserSync.Message, Err: errors.Join(ErrUserSync, err)}
	}
	if strings.TrimSpace(p.Email) == "" {
		return model.User{}, &Error{Kind: KindNotFound, Message: ErrUserSync.Message,
			Err: errors.Join(ErrUserSync, errors.New("identity profile has no email address"))}
	}
	return d.upsert(ctx, profileUser(p), false)
}

func profileUser(p identity.Profile) model.User {
	return model.User{
		ExternalID: p.ID,
		Email:      p.Email,
		FullName:   p.FullName(),
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		ImageURL:   p.ImageURL,
	}
}

// SyncOutcome reports what Sync did.
type SyncOutcome int

const (
	SyncExisting SyncOutcome = iota
	SyncMerged
	SyncCreated
)

// SyncInput is the client-supplied profile used by Sync.
type SyncInput struct {
	ExternalID string
	Email      string
	FullName   string
	FirstName  string
	LastName   string
	ImageURL   string
}

// Sync records a user announced by the client.  An already linked user is
// returned unchanged.
func (d *Directory) Sync(ctx context.Context, in SyncInput) (model.User, SyncOutcome, error) {
	if strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.Email) == "" {
		return model.User{}, SyncExisting, validation("clerkUserId and email are required")
	}
	u, err := d.users.GetByExternalID(ctx, in.ExternalID)
	if err == nil {
		return u, SyncExisting, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, SyncExisting, internal("failed to sync user", err)
	}

	existing, err := d.users.GetByEmail(ctx, in.Email)
	if err == nil {
		merged, err := d.merge(ctx, existing, model.User{
			ExternalID: in.ExternalID, FullName: in.FullName,
			FirstName: in.FirstName, LastName: in.LastName, ImageURL: in.ImageURL,
		})
		return merged, SyncMerged, err
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, SyncExisting, internal("failed to sync user", err)
	}

	nu := model.User{
		ExternalID: in.ExternalID, Email: in.Email, FullName: in.FullName,
		FirstName: in.FirstName, LastName: in.LastName, ImageURL: in.ImageURL,
	}
	if err := d.users.Create(ctx, &nu); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			u, rerr := d.reread(ctx, in.ExternalID, in.Email)
			return u, SyncExisting, rerr
		}
		return model.User{}, SyncExisting, internal("failed to sync user", err)
	}
	d.log.Info("user synced", "clerk_user_id", nu.ExternalID, "user_id", nu.ID)
	return nu, SyncCreated, nil
}

// upsert links u by email or creates it.  With refresh set, an existing
// record's provider fields are overwritten rather than filled in.
func (d *Directory) upsert(ctx context.Context, u model.User, refresh bool) (model.User, error) {
	existing, err := d.users.GetByEmail(ctx, u.Email)
	if err == nil {
		if refresh {
			existing.ExternalID = u.ExternalID
			existing.FullName = u.FullName
			existing.FirstName = u.FirstName
			existing.LastName = u.LastName
			existing.ImageURL = u.ImageURL
			if err := d.users.Update(ctx, &existing); err != nil {
				return model.User{}, internal("failed to update user", err)
			}
			return existing, nil
		}
		return d.merge(ctx, existing, u)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, internal("failed to load user", err)
	}
	if err := d.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return d.reread(ctx, u.ExternalID, u.Email)
		}
		return model.User{}, internal("failed to create user", err)
	}
	d.log.Info("user created from identity provider", "clerk_user_id", u.ExternalID, "user_id", u.ID)
	return u, nil
}

// merge relinks existing to fresh.ExternalID, keeping stored fields the
// fresh profile leaves blank.
func (d *Directory) merge(ctx context.Context, existing, fresh model.User) (model.User, error) {
	existing.ExternalID = fresh.ExternalID
	existing.FullName = coalesce(fresh.FullName, existing.FullName)
	existing.FirstName = coalesce(fresh.FirstName, existing.FirstName)
	existing.LastName = coalesce(fresh.LastName, existing.LastName)
	existing.ImageURL = coalesce(fresh.ImageURL, existing.ImageURL)
	if err := d.users.Update(ctx, &existing); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return d.reread(ctx, fresh.ExternalID, existing.Email)
		}
		return model.User{}, internal("failed to link user", err)
	}
	d.log.Info("user relinked by email", "clerk_user_id", existing.ExternalID, "user_id", existing.ID)
	return existing, nil
}

func (d *Directory) reread(ctx context.Context, externalID, email string) (model.User, error) {
	if u, err := d.users.GetByExternalID(ctx, externalID); err == nil {
		return u, nil
	}
	u, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return model.User{}, internal("user vanished after duplicate insert", err)
	}
	d.log.Info("user found after concurrent insert", "clerk_user_id", externalID)
	return u, nil
}

// ProfileInput is the body of a complete-profile request.
type ProfileInput struct {
	SyncInput
	Phone       string
	College     string
	YearOfStudy string
	RollNumber  string
	Branch      string
}

// CompleteProfile validates and stores the registration fields, creating
// the user when needed.
func (d *Directory) CompleteProfile(ctx context.Context, in ProfileInput) (model.User, error) {
	if strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.Email) == "" {
		return model.User{}, validation("clerkUserId and email are required")
	}
	if in.Phone == "" || in.College == "" || in.YearOfStudy == "" {
		return model.User{}, validation("phone, college, and yearOfStudy are required")
	}
	if in.College == model.HostCollege && (in.Branch == "" || in.RollNumber == "") {
		return model.User{}, validation("branch and rollNumber are required for TCET students")
	}

	u, err := d.users.GetByExternalID(ctx, in.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		u, _, err = d.Sync(ctx, in.SyncInput)
		if err != nil {
			return model.User{}, err
		}
	default:
		return model.User{}, internal("failed to load user", err)
	}

	u.Email = in.Email
	u.FullName = in.FullName
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.ImageURL = in.ImageURL
	u.Phone = in.Phone
	u.College = in.College
	u.YearOfStudy = in.YearOfStudy
	u.RollNumber = in.RollNumber
	u.Branch = in.Branch
	if err := d.users.Update(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, &Error{Kind: KindConflict, Message: "email is already registered to another account", Err: err}
		}
		return model.User{}, internal("failed to complete profile", err)
	}
	d.log.Info("profile completed", "clerk_user_id", u.ExternalID, "user_id", u.ID)
	return u, nil
}

// ProfileStatus answers the check-profile endpoint.
type ProfileStatus struct {
	Exists     bool `json:"exists"`
	IsComplete bool `json:"isComplete"`
}

// CheckProfile reports whether externalID resolves and its profile is
// complete.  An unresolvable user is not an error.
func (d *Directory) CheckProfile(ctx context.Context, externalID string) (ProfileStatus, error) {
	u, err := d.EnsureUserExists(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrUserSync) {
			return ProfileStatus{}, nil
		}
		return ProfileStatus{}, err
	}
	return ProfileStatus{Exists: true, IsComplete: u.ProfileComplete()}, nil
}

// ApplyIdentityEvent mirrors a verified identity-provider webhook.
// Unknown event types are ignored.
func (d *Directory) ApplyIdentityEvent(ctx context.Context, ev identity.WebhookEvent) error {
	p := ev.Data.Profile()
	switch ev.Type {
	case identity.EventUserCreated, identity.EventUserUpdated:
		if p.ID == "" || p.Email == "" {
			return validation("webhook user has no id or email")
		}
		u, err := d.users.GetByExternalID(ctx, p.ID)
		if err == nil {
			fresh := profileUser(p)
			u.Email = fresh.Email
			u.FullName = coalesce(fresh.FullName, u.FullName)
			u.FirstName = coalesce(fresh.FirstName, u.FirstName)
			u.LastName = coalesce(fresh.LastName, u.LastName)
			u.ImageURL = coalesce(fresh.ImageURL, u.ImageURL)
			if err := d.users.Update(ctx, &u); err != nil {
				return internal("failed to update user", err)
			}
			d.log.Info("user updated from identity webhook", "clerk_user_id", p.ID)
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return internal("failed to load user", err)
		}
		_, err = d.upsert(ctx, profileUser(p), ev.Type == identity.EventUserUpdated)
		return err
	case identity.EventUserDeleted:
		n, err := d.users.DeleteByExternalID(ctx, ev.Data.ID)
		if err != nil {
			return internal("failed to delete user", err)
		}
		d.log.Info("user deleted from identity webhook", "clerk_user_id", ev.Data.ID, "rows", n)
		return nil
	default:
		d.log.Info("ignoring identity webhook", "type", ev.Type)
		return nil
	}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
