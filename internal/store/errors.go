package store

import (
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
)

// SQLite result codes the engine cares about. The unique-constraint codes
// are how the idempotency guard detects that a concurrent transaction
// already committed the same operation.
const (
	sqliteBusy                 = 5
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// IsUniqueViolation reports whether err is a unique-constraint failure.
// This is an expected outcome on the idempotency-key index, not a fault.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsBusy reports whether err is a lock-wait timeout (SQLITE_BUSY). Callers
// may retry the whole operation with the same idempotency key.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqliteBusy
	}
	return strings.Contains(err.Error(), "database is locked")
}
