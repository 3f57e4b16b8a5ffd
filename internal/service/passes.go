package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/repository"
)

// errLostRace aborts a unit of work whose pass insert hit a unique key:
// a concurrent writer already filled the user's slot or this transaction.
var errLostRace = errors.New("pass insert lost to concurrent writer")

// lockPassSlot locks the owner row and reports the active pass the user
// already holds, if any.  Must run inside a transaction.
func lockPassSlot(ctx context.Context, users UserStore, passes PassStore, userID uint64) (model.Pass, bool, error) {
	if err := users.LockByID(ctx, userID); err != nil {
		return model.Pass{}, false, err
	}
	p, err := passes.ActiveByUser(ctx, userID)
	if err == nil {
		return p, true, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return model.Pass{}, false, nil
	}
	return model.Pass{}, false, err
}

// insertPass assigns an id and a fresh pass code to p and stores it.
func insertPass(ctx context.Context, passes PassStore, p *model.Pass) error {
	code, err := newPassCode(ctx, passes)
	if err != nil {
		return err
	}
	p.ID = uuid.NewString()
	p.PassCode = code
	if err := passes.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return errLostRace
		}
		return err
	}
	return nil
}

// PassTypeInfo describes one catalog entry.
type PassTypeInfo struct {
	Type        model.PassType `json:"type"`
	StudentOnly bool           `json:"studentOnly"`
}

// PassCatalog lists the tiers that can be purchased or claimed.
func PassCatalog() []PassTypeInfo {
	out := make([]PassTypeInfo, 0, len(model.PassTypes))
	for _, t := range model.PassTypes {
		out = append(out, PassTypeInfo{Type: t, StudentOnly: t == model.PassStudent})
	}
	return out
}

// ListUserPasses returns every pass the user ever held, newest first.
func (e *Engine) ListUserPasses(ctx context.Context, externalID string) ([]model.Pass, error) {
	u, err := e.dir.EnsureUserExists(ctx, externalID)
	if err != nil {
		return nil, err
	}
	list, err := e.passes.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, internal("Failed to fetch passes", err)
	}
	return list, nil
}

// UpdatePassStatus is the admin override for cancellation and refund.
// Reactivating a pass is refused when the owner already holds another.
func (e *Engine) UpdatePassStatus(ctx context.Context, passID string, status model.PassStatus) (model.Pass, error) {
	switch status {
	case model.PassActive, model.PassCancelled, model.PassRefunded:
	default:
		return model.Pass{}, validation("status must be Active, Cancelled or Refunded")
	}
	var p model.Pass
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := e.passes.GetByID(ctx, passID)
		if err != nil {
			return err
		}
		if status.Counts() && !cur.Status.Counts() {
			if _, held, err := lockPassSlot(ctx, e.users, e.passes, cur.UserID); err != nil {
				return err
			} else if held {
				return ErrAlreadyHasPass
			}
		}
		if err := e.passes.UpdateStatus(ctx, passID, status); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyHasPass
			}
			return err
		}
		cur.Status = status
		p = cur
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.Pass{}, ErrPassNotFound
	case errors.Is(err, ErrAlreadyHasPass):
		return model.Pass{}, ErrAlreadyHasPass
	case err != nil:
		return model.Pass{}, internal("Failed to update pass", err)
	}
	e.log.Info("pass status updated", "pass_id", p.PassCode, "user_id", p.UserID, "status", status)
	return p, nil
}
