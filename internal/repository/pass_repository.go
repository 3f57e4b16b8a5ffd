package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/esummit/pass-registry/internal/database"
	"github.com/esummit/pass-registry/internal/model"
)

const passColumns = "id,pass_code,user_id,pass_type,price,status,transaction_id,konfhub_order_id,konfhub_ticket_id,booking_ref,created_at,updated_at"

// PassRepo persists issued passes in the 'passes' table.  The
// active_user_id column mirrors user_id only while a pass is Active; its
// unique key is the storage-level guard for one active pass per user.
type PassRepo struct{ DB *sql.DB }

func NewPassRepo(db *sql.DB) *PassRepo { return &PassRepo{DB: db} }

func scanPass(row scanner) (model.Pass, error) {
	var (
		p                         model.Pass
		passType, status          string
		txID, order, ticket, book sql.NullString
	)
	err := row.Scan(&p.ID, &p.PassCode, &p.UserID, &passType, &p.Price, &status,
		&txID, &order, &ticket, &book, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.PassType = model.PassType(passType)
	p.Status = model.PassStatus(status)
	p.TransactionID = fromNull(txID)
	p.OrderID = fromNull(order)
	p.TicketID = fromNull(ticket)
	p.BookingRef = fromNull(book)
	return p, nil
}

func activeOwner(p *model.Pass) any {
	if p.Status.Counts() {
		return p.UserID
	}
	return nil
}

// Create inserts p.  ErrDuplicate means the user already holds an active
// pass, the pass code collided, or the transaction already produced a pass.
func (r *PassRepo) Create(ctx context.Context, p *model.Pass) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`INSERT INTO passes (id,pass_code,user_id,active_user_id,pass_type,price,status,transaction_id,konfhub_order_id,konfhub_ticket_id,booking_ref)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.PassCode, p.UserID, activeOwner(p), string(p.PassType), p.Price, string(p.Status),
		nullable(p.TransactionID), nullable(p.OrderID), nullable(p.TicketID), nullable(p.BookingRef))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID fetches a pass by primary key.
func (r *PassRepo) GetByID(ctx context.Context, id string) (model.Pass, error) {
	return scanPass(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+passColumns+" FROM passes WHERE id=? LIMIT 1", id))
}

// ActiveByUser returns the user's active pass or ErrNotFound.
func (r *PassRepo) ActiveByUser(ctx context.Context, userID uint64) (model.Pass, error) {
	return scanPass(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+passColumns+" FROM passes WHERE active_user_id=? LIMIT 1", userID))
}

// PassCodeTaken reports whether a human-facing pass code is in use.
func (r *PassRepo) PassCodeTaken(ctx context.Context, code string) (bool, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM passes WHERE pass_code=?", code).Scan(&n)
	return n > 0, err
}

// ListByUser returns every pass the user ever held, newest first.
func (r *PassRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Pass, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT "+passColumns+" FROM passes WHERE user_id=? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Pass{}
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatus changes a pass status and releases or claims the user's
// active slot accordingly.  Reactivating a pass while another is active
// yields ErrDuplicate.
func (r *PassRepo) UpdateStatus(ctx context.Context, id string, status model.PassStatus) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE passes SET status=?, active_user_id=IF(?, user_id, NULL) WHERE id=?",
		string(status), status.Counts(), id)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachTicket records the provider ticket id on the pass issued for a
// transaction.  It is a no-op when no pass exists yet.
func (r *PassRepo) AttachTicket(ctx context.Context, transactionID, ticketID string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE passes SET konfhub_ticket_id=? WHERE transaction_id=?", ticketID, transactionID)
	return err
}
