package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/esummit/pass-registry/internal/database"
	"github.com/esummit/pass-registry/internal/model"
)

const claimColumns = `c.id,c.user_id,u.external_id,u.email,u.full_name,c.pass_type,c.booking_ref,c.order_ref,
	c.ticket_number,c.status,c.pass_id,c.expires_at,c.created_at,c.updated_at`

// ClaimRepo persists pending pass claims in the 'pass_claims' table.
type ClaimRepo struct{ DB *sql.DB }

func NewClaimRepo(db *sql.DB) *ClaimRepo { return &ClaimRepo{DB: db} }

func scanClaim(row scanner) (model.PassClaim, error) {
	var (
		c                         model.PassClaim
		passType, status          string
		book, order, ticket, pass sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ExternalID, &c.Email, &c.FullName, &passType, &book, &order,
		&ticket, &status, &pass, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.PassType = model.PassType(passType)
	c.Status = model.ClaimStatus(status)
	c.BookingRef = fromNull(book)
	c.OrderRef = fromNull(order)
	c.TicketNumber = fromNull(ticket)
	c.PassID = fromNull(pass)
	return c, nil
}

// Create inserts a claim.  ExpiresAt is stored in UTC.
func (r *ClaimRepo) Create(ctx context.Context, c *model.PassClaim) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`INSERT INTO pass_claims (id,user_id,pass_type,booking_ref,order_ref,ticket_number,status,expires_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, string(c.PassType), nullable(c.BookingRef), nullable(c.OrderRef),
		nullable(c.TicketNumber), string(c.Status), c.ExpiresAt.UTC())
	return err
}

// GetByID fetches a claim with its owner's identity fields.
func (r *ClaimRepo) GetByID(ctx context.Context, id string) (model.PassClaim, error) {
	return scanClaim(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM pass_claims c JOIN users u ON u.id=c.user_id WHERE c.id=? LIMIT 1", id))
}

// GetByIDForUpdate is GetByID with a row lock on the claim.
func (r *ClaimRepo) GetByIDForUpdate(ctx context.Context, id string) (model.PassClaim, error) {
	return scanClaim(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+claimColumns+" FROM pass_claims c JOIN users u ON u.id=c.user_id WHERE c.id=? LIMIT 1 FOR UPDATE OF c", id))
}

// ListByUser returns the user's claims, newest first.
func (r *ClaimRepo) ListByUser(ctx context.Context, userID uint64) ([]model.PassClaim, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT "+claimColumns+" FROM pass_claims c JOIN users u ON u.id=c.user_id WHERE c.user_id=? ORDER BY c.created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PassClaim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus moves a claim out of pending.  The WHERE clause only
// matches pending rows, so a claim resolved concurrently yields ErrConflict.
func (r *ClaimRepo) UpdateStatus(ctx context.Context, id string, status model.ClaimStatus, passID *string) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE pass_claims SET status=?, pass_id=? WHERE id=? AND status='pending'",
		string(status), nullable(passID), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConflict
	}
	return nil
}

// ExpirePending flips the user's pending claims whose expires_at has passed
// to expired and returns how many changed.
func (r *ClaimRepo) ExpirePending(ctx context.Context, userID uint64) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE pass_claims SET status='expired' WHERE user_id=? AND status='pending' AND expires_at <= UTC_TIMESTAMP()",
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
