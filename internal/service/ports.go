package service

import (
	"context"

	"github.com/esummit/pass-registry/internal/identity"
	"github.com/esummit/pass-registry/internal/model"
	"github.com/esummit/pass-registry/internal/queue"
	"github.com/esummit/pass-registry/internal/ticketing"
)

// UserStore is satisfied by *repository.UserRepo.
type UserStore interface {
	GetByExternalID(ctx context.Context, externalID string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	LockByID(ctx context.Context, id uint64) error
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	DeleteByExternalID(ctx context.Context, externalID string) (int64, error)
}

// TransactionStore is satisfied by *repository.TransactionRepo.
type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetByID(ctx context.Context, id string) (model.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (model.Transaction, error)
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (model.Transaction, error)
	Update(ctx context.Context, t *model.Transaction) error
	IdentifiersTaken(ctx context.Context, invoice, number string) (bool, error)
	GetDetail(ctx context.Context, id string) (model.TransactionDetail, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.TransactionDetail, error)
	ListByStatus(ctx context.Context, status model.TransactionStatus) ([]model.TransactionDetail, error)
}

// PassStore is satisfied by *repository.PassRepo.
type PassStore interface {
	Create(ctx context.Context, p *model.Pass) error
	GetByID(ctx context.Context, id string) (model.Pass, error)
	ActiveByUser(ctx context.Context, userID uint64) (model.Pass, error)
	PassCodeTaken(ctx context.Context, code string) (bool, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Pass, error)
	UpdateStatus(ctx context.Context, id string, status model.PassStatus) error
	AttachTicket(ctx context.Context, transactionID, ticketID string) error
}

// ClaimStore is satisfied by *repository.ClaimRepo.
type ClaimStore interface {
	Create(ctx context.Context, c *model.PassClaim) error
	GetByID(ctx context.Context, id string) (model.PassClaim, error)
	GetByIDForUpdate(ctx context.Context, id string) (model.PassClaim, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.PassClaim, error)
	UpdateStatus(ctx context.Context, id string, status model.ClaimStatus, passID *string) error
	ExpirePending(ctx context.Context, userID uint64) (int64, error)
}

// TxRunner is satisfied by *database.TxManager.  Stores called with the
// context passed to fn take part in the same transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Gateway is satisfied by *ticketing.Client.
type Gateway interface {
	CreateOrder(ctx context.Context, req ticketing.OrderRequest) (ticketing.Order, error)
	GetOrder(ctx context.Context, orderID string) (ticketing.Order, error)
	CancelOrder(ctx context.Context, orderID string) (ticketing.CancelResult, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// ProfileSource is satisfied by *identity.Client.
type ProfileSource interface {
	GetUser(ctx context.Context, externalID string) (identity.Profile, error)
}

// EventPublisher is satisfied by *queue.Publisher.
type EventPublisher interface {
	PublishPassIssued(ctx context.Context, ev queue.PassIssuedEvent) error
}
