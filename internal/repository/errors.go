// Package repository implements persistence for users, payment
// transactions, passes, pass claims and admin sessions on MySQL.  Every
// repository resolves its connection through database.Conn so the same
// method participates in a surrounding database.TxManager transaction when
// one is active.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.  Handlers should
// translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key.
// Callers use it to detect the losing side of a concurrent create.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when an update cannot be performed because the
// row is no longer in the expected state.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
