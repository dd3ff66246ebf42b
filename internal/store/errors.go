package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors surfaced to callers. Use errors.Is to check.
var (
	// ErrStorageUnavailable means the platform refused persistent storage.
	// Offline mode cannot work without it, so it is never retried silently.
	ErrStorageUnavailable = errors.New("store: persistent storage unavailable")

	// ErrStorageQuotaExceeded means a write was rejected because the queue
	// is at its configured cap or the database reached its size limit.
	// The rejected action is not stored.
	ErrStorageQuotaExceeded = errors.New("store: storage quota exceeded")
)

// primaryCodeMask strips SQLite extended result codes down to the primary code.
const primaryCodeMask = 0xff

// isFull reports whether err is SQLite's "database or disk is full".
func isFull(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_FULL
}

// isUnavailable reports whether err is a SQLite error that means the file
// cannot be opened or written at all.
func isUnavailable(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_AUTH:
		return true
	default:
		return false
	}
}

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() & primaryCodeMask
	}

	return 0
}
