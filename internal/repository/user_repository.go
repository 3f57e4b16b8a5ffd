package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/esummit/pass-registry/internal/database"
	"github.com/esummit/pass-registry/internal/model"
)

const userColumns = "id,external_id,email,full_name,first_name,last_name,image_url,phone,college,year_of_study,roll_number,branch,created_at,updated_at"

// UserRepo persists registrants in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.FullName, &u.FirstName, &u.LastName, &u.ImageURL,
		&u.Phone, &u.College, &u.YearOfStudy, &u.RollNumber, &u.Branch, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByExternalID fetches a user by identity provider id.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (model.User, error) {
	return scanUser(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE external_id=? LIMIT 1", externalID))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// LockByID takes a row lock on the user for the rest of the surrounding
// transaction.  Pass issuance locks the owner first so concurrent
// completions for the same user queue behind each other.
func (r *UserRepo) LockByID(ctx context.Context, id uint64) error {
	var got uint64
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id FROM users WHERE id=? FOR UPDATE", id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Create inserts u and sets its ID.  A unique-key violation on either
// external_id or email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`INSERT INTO users (external_id,email,full_name,first_name,last_name,image_url,phone,college,year_of_study,roll_number,branch)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ExternalID, u.Email, u.FullName, u.FirstName, u.LastName, u.ImageURL,
		u.Phone, u.College, u.YearOfStudy, u.RollNumber, u.Branch)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// Update overwrites every mutable column of the row identified by u.ID,
// including external_id, which is how an email-matched record is relinked
// to a new identity.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE users SET external_id=?,email=?,full_name=?,first_name=?,last_name=?,image_url=?,
		 phone=?,college=?,year_of_study=?,roll_number=?,branch=? WHERE id=?`,
		u.ExternalID, u.Email, u.FullName, u.FirstName, u.LastName, u.ImageURL,
		u.Phone, u.College, u.YearOfStudy, u.RollNumber, u.Branch, u.ID)
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

// DeleteByExternalID hard-deletes the user; dependent rows cascade.
func (r *UserRepo) DeleteByExternalID(ctx context.Context, externalID string) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx, "DELETE FROM users WHERE external_id=?", externalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
