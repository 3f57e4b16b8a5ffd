package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/esummit/pass-registry/internal/database"
	"github.com/esummit/pass-registry/internal/model"
)

const txColumns = "t.id,t.user_id,t.pass_id,t.invoice_number,t.transaction_number,t.konfhub_order_id,t.konfhub_ticket_id,t.konfhub_payment_id,t.amount,t.currency,t.status,t.payment_method,t.metadata,t.created_at,t.updated_at"

// TransactionRepo persists payment attempts in the 'transactions' table.
type TransactionRepo struct{ DB *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{DB: db} }

type scanner interface{ Scan(...any) error }

func scanTransaction(row scanner, extra ...any) (model.Transaction, error) {
	var (
		t                           model.Transaction
		passID, ticketID, paymentID sql.NullString
		status                      string
		meta                        []byte
	)
	dest := []any{&t.ID, &t.UserID, &passID, &t.InvoiceNumber, &t.TransactionNumber, &t.OrderID,
		&ticketID, &paymentID, &t.Amount, &t.Currency, &status, &t.PaymentMethod, &meta, &t.CreatedAt, &t.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.PassID = fromNull(passID)
	t.TicketID = fromNull(ticketID)
	t.PaymentID = fromNull(paymentID)
	t.Status = model.TransactionStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Meta); err != nil {
			return t, fmt.Errorf("decode metadata of transaction %s: %w", t.ID, err)
		}
	}
	return t, nil
}

// Create inserts a new transaction row.  The caller assigns ID and the
// generated identifiers; a collision on any unique key yields ErrDuplicate.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return err
	}
	_, err = database.Conn(ctx, r.DB).ExecContext(ctx,
		`INSERT INTO transactions (id,user_id,invoice_number,transaction_number,konfhub_order_id,konfhub_ticket_id,
		 amount,currency,status,payment_method,metadata) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.InvoiceNumber, t.TransactionNumber, t.OrderID, nullable(t.TicketID),
		t.Amount, t.Currency, string(t.Status), t.PaymentMethod, meta)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID fetches a transaction by primary key.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (model.Transaction, error) {
	return scanTransaction(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions t WHERE t.id=? LIMIT 1", id))
}

// GetByOrderID fetches the transaction created for a remote order.
func (r *TransactionRepo) GetByOrderID(ctx context.Context, orderID string) (model.Transaction, error) {
	return scanTransaction(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions t WHERE t.konfhub_order_id=? LIMIT 1", orderID))
}

// GetByOrderIDForUpdate is GetByOrderID with a row lock.  It must run
// inside a transaction; competing completions for the same order block
// here until the winner commits and then observe its final status.
func (r *TransactionRepo) GetByOrderIDForUpdate(ctx context.Context, orderID string) (model.Transaction, error) {
	return scanTransaction(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions t WHERE t.konfhub_order_id=? LIMIT 1 FOR UPDATE", orderID))
}

// Update writes status, remote references, pass link and metadata.
func (r *TransactionRepo) Update(ctx context.Context, t *model.Transaction) error {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return err
	}
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE transactions SET pass_id=?,konfhub_ticket_id=?,konfhub_payment_id=?,status=?,metadata=? WHERE id=?`,
		nullable(t.PassID), nullable(t.TicketID), nullable(t.PaymentID), string(t.Status), meta, t.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// IdentifiersTaken reports whether either generated identifier is in use.
func (r *TransactionRepo) IdentifiersTaken(ctx context.Context, invoice, number string) (bool, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE invoice_number=? OR transaction_number=?",
		invoice, number).Scan(&n)
	return n > 0, err
}

const detailJoin = ` FROM transactions t
	JOIN users u ON u.id = t.user_id
	LEFT JOIN passes p ON p.id = t.pass_id`

func scanDetail(row scanner) (model.TransactionDetail, error) {
	var (
		email, fullName               string
		passCode, passType, passState sql.NullString
	)
	t, err := scanTransaction(row, &email, &fullName, &passCode, &passType, &passState)
	if err != nil {
		return model.TransactionDetail{}, err
	}
	d := model.TransactionDetail{Transaction: t, User: &model.UserSummary{Email: email, FullName: fullName}}
	if passCode.Valid {
		d.Pass = &model.PassSummary{
			PassCode: passCode.String,
			PassType: model.PassType(passType.String),
			Status:   model.PassStatus(passState.String),
		}
	}
	return d, nil
}

// GetDetail returns a transaction with its owner and pass summary.
func (r *TransactionRepo) GetDetail(ctx context.Context, id string) (model.TransactionDetail, error) {
	return scanDetail(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+txColumns+",u.email,u.full_name,p.pass_code,p.pass_type,p.status"+detailJoin+" WHERE t.id=? LIMIT 1", id))
}

// ListByUser returns the user's transactions, newest first.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.TransactionDetail, error) {
	return r.listDetails(ctx, " WHERE t.user_id=? ORDER BY t.created_at DESC, t.id", userID)
}

// ListByStatus returns all transactions in the given status, oldest first.
func (r *TransactionRepo) ListByStatus(ctx context.Context, status model.TransactionStatus) ([]model.TransactionDetail, error) {
	return r.listDetails(ctx, " WHERE t.status=? ORDER BY t.created_at ASC, t.id", string(status))
}

func (r *TransactionRepo) listDetails(ctx context.Context, where string, arg any) ([]model.TransactionDetail, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT "+txColumns+",u.email,u.full_name,p.pass_code,p.pass_type,p.status"+detailJoin+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TransactionDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
