package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned when using a database after Close.
	ErrClosed = errors.New("database: closed")

	// ErrEmptyPath is returned when a Config has no path.
	ErrEmptyPath = errors.New("database: path cannot be empty")

	// ErrEmptyKey is returned when installing an empty cipher key.
	ErrEmptyKey = errors.New("database: cipher key cannot be empty")

	// ErrCheckpointBusy is returned when a checkpoint could not complete
	// because readers or writers held the log.
	ErrCheckpointBusy = errors.New("database: checkpoint blocked by active connections")

	// ErrNotHandle is returned when a pooled connection is not a Handle.
	ErrNotHandle = errors.New("database: connection is not a configured handle")
)

// IsBusy reports whether err is a SQLite busy or locked error.
func IsBusy(err error) bool {
	if errors.Is(err, ErrCheckpointBusy) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
