package dbconfig

import (
	"context"
	"fmt"

	"github.com/nerrad567/graystore/internal/trace"
)

// CommittedHook is invoked after a write transaction commits on a handle.
// pages is the number of frames in the write-ahead log at that moment.
type CommittedHook func(path string, pages int)

// Handle is a single open connection to the storage engine, as seen by
// configs. Implementations are not required to be safe for concurrent use;
// a chain is applied by one goroutine at a time.
type Handle interface {
	// Path returns the database file path the handle is connected to.
	Path() string

	// IsReadonly reports whether the handle was opened read-only.
	IsReadonly() bool

	// Prepare compiles a statement for stepping.
	Prepare(ctx context.Context, query string) (Statement, error)

	// Exec runs a statement to completion, discarding any rows.
	Exec(ctx context.Context, query string) error

	// SetCipherKey installs the encryption key for the handle.
	SetCipherKey(ctx context.Context, key []byte) error

	// SetPerformanceTrace attaches a performance sink to the handle.
	SetPerformanceTrace(fn trace.PerformanceTrace)

	// SetSQLTrace attaches a SQL sink to the handle.
	SetSQLTrace(fn trace.SQLTrace)

	// RegisterCommittedHook adds a hook invoked after every commit.
	RegisterCommittedHook(hook CommittedHook)
}

// Statement is a prepared statement on a Handle.
type Statement interface {
	// Bind sets the parameter at index (1-based).
	Bind(index int, value any)

	// Step advances to the next row. It returns false once the statement
	// is done.
	Step() (bool, error)

	// Text returns column (0-based) of the current row as text.
	Text(column int) string

	// Finalize releases the statement.
	Finalize() error
}

// queryText runs a single-row query and returns its first column.
func queryText(ctx context.Context, h Handle, query string) (string, error) {
	stmt, err := h.Prepare(ctx, query)
	if err != nil {
		return "", fmt.Errorf("preparing %q: %w", query, err)
	}

	row, err := stmt.Step()
	if err != nil {
		stmt.Finalize() //nolint:errcheck // step error takes precedence
		return "", fmt.Errorf("stepping %q: %w", query, err)
	}

	var value string
	if row {
		value = stmt.Text(0)
	}

	if err := stmt.Finalize(); err != nil {
		return "", fmt.Errorf("finalizing %q: %w", query, err)
	}
	return value, nil
}
