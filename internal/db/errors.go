package db

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors surfaced by the store and repository functions. Callers
// match them with errors.Is.
var (
	// ErrDuplicateKey marks an insert that violated a uniqueness constraint
	// (alias value or public alias already stored, expired or not).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnavailable marks a failure to reach or use the backing store.
	ErrUnavailable = errors.New("backing store unavailable")
)

// IsDuplicateKey reports whether err stems from a uniqueness violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsUnavailable reports whether err stems from the backing store being
// unreachable or unusable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// classify marks driver errors with the matching sentinel so callers can
// branch with errors.Is without importing driver packages. Errors that fit
// no category pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	// Message check first: it covers both the real driver and mocked
	// drivers used in tests.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return errors.Mark(err, ErrDuplicateKey)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.Mark(err, ErrDuplicateKey)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return errors.Mark(err, ErrUnavailable)
		}
		return err
	}

	if errors.Is(err, sql.ErrConnDone) || strings.Contains(msg, "database is closed") {
		return errors.Mark(err, ErrUnavailable)
	}
	return err
}
