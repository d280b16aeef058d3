package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a single-row read or targeted write
	// matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a unique constraint,
	// e.g. a duplicate phase code or rule number.
	ErrConflict = errors.New("conflict")
)

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isForeignKeyViolation reports whether err references a missing parent row.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// translate maps driver errors onto the package sentinels and wraps them
// with the operation name. A write referencing a missing row (e.g. a
// bookmark on an unknown rule) is reported as ErrNotFound.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
