package ledger

import (
	"errors"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrStorageUnavailable indicates a transient storage failure. The caller
// must not assume the operation succeeded or failed; retrying the identical
// observation is safe because the ledger is idempotent.
var ErrStorageUnavailable = errors.New("storage unavailable")

// isUniqueViolation reports whether err is a SQLite uniqueness or primary
// key constraint failure. This is the expected duplicate-delivery path,
// never a storage fault.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// isTransient reports whether err is a busy/locked condition that a caller
// may retry.
func isTransient(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
