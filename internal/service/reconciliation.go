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
	"github.com/esummit/pass-registry/internal/ticketing"
)

// ErrInvalidSignature rejects a webhook whose signature does not verify.
var ErrInvalidSignature = &Error{Kind: KindUnauthorized, Message: "Invalid signature"}

const paymentMethod = "konfhub"

// Engine turns purchase intents into passes.  Local Transaction rows are
// authoritative: the explicit verify call and the webhook both funnel into
// issuePass, which runs inside one database transaction holding row locks
// on the transaction and its owner.
type Engine struct {
	dir      *Directory
	users    UserStore
	txs      TransactionStore
	passes   PassStore
	tx       TxRunner
	gateway  Gateway
	events   EventPublisher
	currency string
	log      *slog.Logger
	now      func() time.Time
}

// EngineDeps groups the collaborators of an Engine.
type EngineDeps struct {
	Directory    *Directory
	Users        UserStore
	Transactions TransactionStore
	Passes       PassStore
	Tx           TxRunner
	Gateway      Gateway
	Events       EventPublisher
	Currency     string
	Logger       *slog.Logger
}

func NewEngine(d EngineDeps) *Engine {
	cur := d.Currency
	if cur == "" {
		cur = ticketing.DefaultCurrency
	}
	ev := d.Events
	if ev == nil {
		ev = queue.Discard{}
	}
	return &Engine{
		dir:      d.Directory,
		users:    d.Users,
		txs:      d.Transactions,
		passes:   d.Passes,
		tx:       d.Tx,
		gateway:  d.Gateway,
		events:   ev,
		currency: cur,
		log:      orDiscard(d.Logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderInput is the body of a create-order request.
type CreateOrderInput struct {
	ExternalID string
	PassType   model.PassType
	Price      decimal.Decimal
}

// OrderResult is returned by CreateOrder.
type OrderResult struct {
	OrderID           string          `json:"orderId"`
	TicketID          string          `json:"ticketId,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	TransactionID     string          `json:"transactionId"`
	InvoiceNumber     string          `json:"invoiceNumber"`
	TransactionNumber string          `json:"transactionNumber"`
	CheckoutURL       string          `json:"checkoutUrl"`
	PaymentURL        string          `json:"paymentUrl"`
}

// CreateOrder opens a remote order for the user and records it as a
// pending transaction.  A user who already holds an active pass is
// rejected before the gateway is called.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderResult, error) {
	if strings.TrimSpace(in.ExternalID) == "" || in.PassType == "" {
		return OrderResult{}, validation("clerkUserId, passType, and price are required")
	}
	if !in.Price.IsPositive() {
		return OrderResult{}, validation("Invalid price amount")
	}
	if !in.PassType.Valid() {
		return OrderResult{}, validation("Invalid pass type")
	}

	user, err := e.dir.EnsureUserExists(ctx, in.ExternalID)
	if err != nil {
		return OrderResult{}, err
	}
	if _, err := e.passes.ActiveByUser(ctx, user.ID); err == nil {
		return OrderResult{}, ErrAlreadyHasPass
	} else if !errors.Is(err, repository.ErrNotFound) {
		return OrderResult{}, internal("failed to check existing passes", err)
	}

	now := e.now()
	invoice, number, err := newIdentifiers(ctx, e.txs, now)
	if err != nil {
		return OrderResult{}, internal("failed to generate identifiers", err)
	}

	name := user.FullName
	if name == "" {
		name = user.Email
	}
	order, err := e.gateway.CreateOrder(ctx, ticketing.OrderRequest{
		Quantity: 1,
		Customer: ticketing.CustomerInfo{Name: name, Email: user.Email, Phone: user.Phone},
		Metadata: ticketing.OrderMetadata{
			ClerkUserID:       user.ExternalID,
			PassType:          string(in.PassType),
			InvoiceNumber:     invoice,
			TransactionNumber: number,
		},
	})
	if err != nil {
		if errors.Is(err, ticketing.ErrInvalidRequest) {
			return OrderResult{}, validation("customer email is required")
		}
		return OrderResult{}, upstream("Failed to create order", err)
	}

	currency := order.Currency
	if currency == "" {
		currency = e.currency
	}
	t := model.Transaction{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		InvoiceNumber:     invoice,
		TransactionNumber: number,
		OrderID:           order.OrderID,
		TicketID:          optional(order.TicketID),
		Amount:            in.Price,
		Currency:          currency,
		Status:            model.TxPending,
		PaymentMethod:     paymentMethod,
		Meta: model.TransactionMeta{
			Version:  model.MetaVersion,
			PassType: in.PassType,
			Created:  &model.OrderCreatedMeta{At: now, CheckoutURL: order.CheckoutURL},
		},
	}
	if err := e.txs.Create(ctx, &t); err != nil {
		// The remote order exists without a local record; withdraw it so
		// nobody can pay for an order no completion path could resolve.
		e.log.Error("failed to persist transaction for remote order", "order_id", order.OrderID, "user_id", user.ID, "err", err)
		if _, cerr := e.gateway.CancelOrder(ctx, order.OrderID); cerr != nil {
			e.log.Error("failed to withdraw orphaned remote order", "order_id", order.OrderID, "err", cerr)
		}
		return OrderResult{}, internal("Failed to create order", err)
	}
	e.log.Info("transaction created", "order_id", t.OrderID, "transaction_id", t.ID, "user_id", user.ID,
		"invoice", invoice, "pass_type", in.PassType)

	return OrderResult{
		OrderID:           order.OrderID,
		TicketID:          order.TicketID,
		Amount:            in.Price,
		Currency:          currency,
		TransactionID:     t.ID,
		InvoiceNumber:     invoice,
		TransactionNumber: number,
		CheckoutURL:       order.CheckoutURL,
		PaymentURL:        order.PaymentURL,
	}, nil
}

// VerifyInput is the body of a verify-and-create-pass request.
type VerifyInput struct {
	OrderID   string
	TicketID  string
	PaymentID string
}

// PassResult carries the outcome of a successful completion.
type PassResult struct {
	Pass        model.Pass        `json:"pass"`
	Transaction model.Transaction `json:"transaction"`
}

// VerifyAndCreatePass confirms payment with the gateway and issues the
// pass.  A second call for the same order returns ErrAlreadyProcessed; a
// user who gained a pass in the meantime gets ErrRefundOwed and the
// transaction is parked as refund_pending.
func (e *Engine) VerifyAndCreatePass(ctx context.Context, in VerifyInput) (PassResult, error) {
	if strings.TrimSpace(in.OrderID) == "" {
		return PassResult{}, validation("Order ID is required")
	}
	order, err := e.gateway.GetOrder(ctx, in.OrderID)
	if err != nil {
		return PassResult{}, upstream("Failed to verify payment", err)
	}
	if order.Status != ticketing.OrderCompleted {
		reason := "payment not completed"
		if _, err := e.markFailed(ctx, in.OrderID, reason, string(order.Status)); err != nil &&
			!errors.Is(err, ErrTransactionNotFound) {
			e.log.Error("failed to record verification failure", "order_id", in.OrderID, "err", err)
		}
		return PassResult{}, ErrPaymentNotCompleted
	}

	out, err := e.issuePass(ctx, in.OrderID, completion{
		ticketID:  firstNonEmpty(in.TicketID, order.TicketID, firstTicket(order)),
		paymentID: firstNonEmpty(in.PaymentID, order.PaymentID),
		source:    model.SourceVerify,
		order:     order,
	})
	if err != nil {
		return PassResult{}, err
	}
	switch out.kind {
	case issueNotFound:
		return PassResult{}, ErrTransactionNotFound
	case issueAlreadyDone:
		return PassResult{}, ErrAlreadyProcessed
	case issueRefundOwed, issueRefundParked:
		return PassResult{}, ErrRefundOwed
	}
	return PassResult{Pass: out.pass, Transaction: out.txn}, nil
}

type completion struct {
	ticketID  string
	paymentID string
	source    model.CompletionSource
	order     ticketing.Order
}

type issueKind int

const (
	issueCreated issueKind = iota
	issueNotFound
	issueAlreadyDone
	issueRefundOwed
	issueRefundParked
)

type issueOutcome struct {
	kind issueKind
	pass model.Pass
	txn  model.Transaction
}

// issuePass is the single create-pass unit shared by every completion
// path.  Under the transaction row lock it re-reads the status, re-checks
// the one-active-pass rule under the owner's row lock, then inserts the
// pass and completes the transaction together.  A refund_pending outcome
// commits; every error rolls the whole unit back.
func (e *Engine) issuePass(ctx context.Context, orderID string, c completion) (issueOutcome, error) {
	var out issueOutcome
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		out = issueOutcome{}
		t, err := e.txs.GetByOrderIDForUpdate(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			out.kind = issueNotFound
			return nil
		}
		if err != nil {
			return err
		}
		out.txn = t
		switch t.Status {
		case model.TxCompleted:
			out.kind = issueAlreadyDone
			return nil
		case model.TxRefundPending:
			out.kind = issueRefundParked
			return nil
		case model.TxFailed, model.TxCancelled:
			e.log.Warn("gateway confirmed payment for closed transaction", "order_id", orderID,
				"transaction_id", t.ID, "status", t.Status)
		}
		now := e.now()
		applyRefs(&t, c)
		existing, held, err := lockPassSlot(ctx, e.users, e.passes, t.UserID)
		if err != nil {
			return err
		}
		if held {
			t.Status = model.TxRefundPending
			t.Meta.Refund = &model.RefundMeta{
				At:       now,
				Reason:   "user already holds an active pass",
				Existing: existing.PassCode,
			}
			if err := e.txs.Update(ctx, &t); err != nil {
				return err
			}
			out.kind = issueRefundOwed
			out.txn = t
			return nil
		}

		if !c.order.Amount.IsZero() && !c.order.Amount.Equal(t.Amount) {
			e.log.Warn("gateway amount differs from recorded price", "order_id", orderID,
				"recorded", t.Amount.String(), "gateway", c.order.Amount.String())
		}
		p := model.Pass{
			UserID:        t.UserID,
			PassType:      t.Meta.PassType,
			Price:         t.Amount,
			Status:        model.PassActive,
			TransactionID: &t.ID,
			OrderID:       &t.OrderID,
			TicketID:      t.TicketID,
		}
		if err := insertPass(ctx, e.passes, &p); err != nil {
			return err
		}

		t.Status = model.TxCompleted
		t.PassID = &p.ID
		t.Meta.Completed = &model.OrderCompletedMeta{At: now, PassCode: p.PassCode, Source: c.source}
		if err := e.txs.Update(ctx, &t); err != nil {
			return err
		}
		p.CreatedAt, p.UpdatedAt = now, now
		out = issueOutcome{kind: issueCreated, pass: p, txn: t}
		return nil
	})
	if errors.Is(err, errLostRace) {
		e.log.Info("concurrent completion already issued pass", "order_id", orderID)
		return issueOutcome{kind: issueAlreadyDone}, nil
	}
	if err != nil {
		return issueOutcome{}, internal("Failed to create pass", err)
	}

	switch out.kind {
	case issueCreated:
		e.log.Info("transaction completed", "order_id", orderID, "transaction_id", out.txn.ID,
			"user_id", out.txn.UserID, "pass_id", out.pass.PassCode, "source", c.source)
		e.publishIssued(ctx, out.pass, out.txn.Currency, string(c.source))
	case issueRefundOwed:
		e.log.Error("paid order blocked by existing pass; refund owed", "order_id", orderID,
			"transaction_id", out.txn.ID, "user_id", out.txn.UserID)
	}
	return out, nil
}

func applyRefs(t *model.Transaction, c completion) {
	if c.ticketID != "" {
		t.TicketID = &c.ticketID
	}
	if c.paymentID != "" {
		t.PaymentID = &c.paymentID
	}
}

func (e *Engine) publishIssued(ctx context.Context, p model.Pass, currency, source string) {
	ev := queue.PassIssuedEvent{
		PassID:   p.ID,
		PassCode: p.PassCode,
		PassType: string(p.PassType),
		UserID:   p.UserID,
		Price:    p.Price.StringFixed(2),
		Currency: currency,
		Source:   source,
		IssuedAt: e.now().Format(time.RFC3339),
	}
	if p.TransactionID != nil {
		ev.TransactionID = *p.TransactionID
	}
	if p.OrderID != nil {
		ev.OrderID = *p.OrderID
	}
	if u, err := e.users.GetByID(ctx, p.UserID); err == nil {
		ev.Email = u.Email
	}
	if err := e.events.PublishPassIssued(ctx, ev); err != nil {
		e.log.Warn("pass.issued publish failed", "pass_id", p.PassCode, "err", err)
	}
}

// PaymentFailed records a client-reported failure.  Only a pending
// transaction changes; repeated or late reports are no-ops.
func (e *Engine) PaymentFailed(ctx context.Context, orderID, reason string) (string, error) {
	if strings.TrimSpace(orderID) == "" {
		return "", validation("Order ID is required")
	}
	if reason == "" {
		reason = "Payment failed"
	}
	return e.markFailed(ctx, orderID, reason, "")
}

func (e *Engine) markFailed(ctx context.Context, orderID, reason, providerStatus string) (string, error) {
	var id string
	changed := false
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := e.txs.GetByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		id = t.ID
		if t.Status != model.TxPending {
			return nil
		}
		t.Status = model.TxFailed
		t.Meta.Failed = &model.OrderFailedMeta{At: e.now(), Reason: reason, ProviderStatus: providerStatus}
		changed = true
		return e.txs.Update(ctx, &t)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrTransactionNotFound
	}
	if err != nil {
		return "", internal("Failed to record payment failure", err)
	}
	if changed {
		e.log.Info("transaction failed", "order_id", orderID, "transaction_id", id, "reason", reason)
	}
	return id, nil
}

// HandleWebhook authenticates and applies one provider notification.
// Once the signature verifies, only a genuine processing failure returns
// an error; unknown events and unresolvable references are acknowledged.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !e.gateway.VerifyWebhookSignature(payload, signature) {
		e.log.Warn("webhook rejected: invalid signature")
		return ErrInvalidSignature
	}
	ev, err := ticketing.ParseWebhook(payload)
	if err != nil {
		e.log.Warn("webhook body not understood; acknowledging", "err", err)
		return nil
	}
	e.log.Info("webhook received", "event", ev.Event, "order_id", ev.OrderID)
	if ev.OrderID == "" {
		e.log.Warn("webhook without order id; acknowledging", "event", ev.Event)
		return nil
	}

	switch ev.Event {
	case ticketing.EventOrderCompleted:
		return e.webhookCompleted(ctx, ev)
	case ticketing.EventOrderCancelled:
		return e.webhookCancelled(ctx, ev)
	case ticketing.EventTicketIssued:
		return e.webhookTicketIssued(ctx, ev)
	default:
		e.log.Info("unhandled webhook event", "event", ev.Event)
		return nil
	}
}

func (e *Engine) webhookCompleted(ctx context.Context, ev ticketing.WebhookEvent) error {
	t, err := e.txs.GetByOrderID(ctx, ev.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("webhook for unknown order; acknowledging", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return internal("Failed to process webhook", err)
	}
	if t.Status.Settled() {
		e.log.Info("webhook for already settled transaction", "order_id", ev.OrderID, "status", t.Status)
		return nil
	}

	order, err := e.gateway.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return upstream("Failed to process webhook", err)
	}
	if order.Status != ticketing.OrderCompleted {
		e.log.Warn("webhook claims completion but gateway disagrees", "order_id", ev.OrderID, "gateway_status", order.Status)
		return nil
	}
	_, err = e.issuePass(ctx, ev.OrderID, completion{
		ticketID:  firstNonEmpty(order.TicketID, ev.TicketID, firstTicket(order)),
		paymentID: firstNonEmpty(order.PaymentID, ev.PaymentID),
		source:    model.SourceWebhook,
		order:     order,
	})
	return err
}

func (e *Engine) webhookCancelled(ctx context.Context, ev ticketing.WebhookEvent) error {
	changed := false
	var id string
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := e.txs.GetByOrderIDForUpdate(ctx, ev.OrderID)
		if err != nil {
			return err
		}
		id = t.ID
		if t.Status != model.TxPending {
			return nil
		}
		t.Status = model.TxCancelled
		t.Meta.Cancelled = &model.OrderCancelledMeta{At: e.now(), Source: "webhook"}
		changed = true
		return e.txs.Update(ctx, &t)
	})
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("cancellation for unknown order; acknowledging", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return internal("Failed to process webhook", err)
	}
	if changed {
		e.log.Info("transaction cancelled", "order_id", ev.OrderID, "transaction_id", id, "source", "webhook")
	}
	return nil
}

func (e *Engine) webhookTicketIssued(ctx context.Context, ev ticketing.WebhookEvent) error {
	if ev.TicketID == "" {
		e.log.Warn("ticket.issued without ticket id", "order_id", ev.OrderID)
		return nil
	}
	var id string
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := e.txs.GetByOrderIDForUpdate(ctx, ev.OrderID)
		if err != nil {
			return err
		}
		id = t.ID
		t.TicketID = &ev.TicketID
		t.Meta.Ticket = &model.TicketIssuedMeta{At: e.now(), TicketID: ev.TicketID}
		if err := e.txs.Update(ctx, &t); err != nil {
			return err
		}
		return e.passes.AttachTicket(ctx, t.ID, ev.TicketID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("ticket for unknown order; acknowledging", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return internal("Failed to process webhook", err)
	}
	e.log.Info("ticket attached", "order_id", ev.OrderID, "transaction_id", id, "ticket_id", ev.TicketID)
	return nil
}

// Cancel withdraws a pending order from the gateway and marks its
// transaction cancelled.  Failed and cancelled transactions are left as
// they are.
func (e *Engine) Cancel(ctx context.Context, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return validation("Transaction ID is required")
	}
	t, err := e.txs.GetByID(ctx, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return internal("Failed to cancel order", err)
	}
	switch t.Status {
	case model.TxCompleted, model.TxRefundPending:
		return ErrCompletedNotCancellable
	case model.TxCancelled, model.TxFailed:
		return nil
	}
	if t.OrderID == "" {
		return ErrMissingOrderRef
	}
	if _, err := e.gateway.CancelOrder(ctx, t.OrderID); err != nil {
		return upstream("Failed to cancel order", err)
	}

	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := e.txs.GetByOrderIDForUpdate(ctx, t.OrderID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case model.TxCompleted, model.TxRefundPending:
			return ErrCompletedNotCancellable
		case model.TxCancelled, model.TxFailed:
			return nil
		}
		cur.Status = model.TxCancelled
		cur.Meta.Cancelled = &model.OrderCancelledMeta{At: e.now(), Source: "user"}
		return e.txs.Update(ctx, &cur)
	})
	if errors.Is(err, ErrCompletedNotCancellable) {
		e.log.Error("order completed while being cancelled", "order_id", t.OrderID, "transaction_id", t.ID)
		return err
	}
	if err != nil {
		return internal("Failed to cancel order", err)
	}
	e.log.Info("transaction cancelled", "order_id", t.OrderID, "transaction_id", t.ID, "user_id", t.UserID, "source", "user")
	return nil
}

// GetTransaction returns a transaction with its owner and pass summary.
func (e *Engine) GetTransaction(ctx context.Context, id string) (model.TransactionDetail, error) {
	d, err := e.txs.GetDetail(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return d, ErrTransactionNotFound
	}
	if err != nil {
		return d, internal("Failed to fetch transaction", err)
	}
	return d, nil
}

// ListUserTransactions returns the user's transactions, newest first.
func (e *Engine) ListUserTransactions(ctx context.Context, externalID string) ([]model.TransactionDetail, error) {
	u, err := e.dir.EnsureUserExists(ctx, externalID)
	if err != nil {
		return nil, err
	}
	list, err := e.txs.ListByUser(ctx, u.ID)
	if err != nil {
		return nil, internal("Failed to fetch transactions", err)
	}
	return list, nil
}

// ListByStatus feeds the manual reconciliation queue.
func (e *Engine) ListByStatus(ctx context.Context, status model.TransactionStatus) ([]model.TransactionDetail, error) {
	switch status {
	case model.TxPending, model.TxCompleted, model.TxFailed, model.TxCancelled, model.TxRefundPending:
	default:
		return nil, validation("invalid status")
	}
	list, err := e.txs.ListByStatus(ctx, status)
	if err != nil {
		return nil, internal("Failed to fetch transactions", err)
	}
	return list, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTicket(o ticketing.Order) string {
	if len(o.Tickets) > 0 {
		return o.Tickets[0].ID
	}
	return ""
}
