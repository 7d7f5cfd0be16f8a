package db

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrNoRows = errors.New("no rows found")
	// ErrDuplicate reports a unique or primary key violation.
	ErrDuplicate = errors.New("duplicate row")
	// ErrForeignKey reports a reference to a row that does not exist.
	ErrForeignKey = errors.New("referenced row does not exist")
)

// translate maps driver errors onto the package sentinels and adds op as context.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNoRows, op)
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Wrap(ErrDuplicate, op)
		case sqlite3.ErrConstraintForeignKey:
			return errors.Wrap(ErrForeignKey, op)
		}
	}
	return errors.Wrap(err, op)
}

// IsTransient reports whether err is a lock contention failure that may
// succeed when retried.
func IsTransient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
