package dbconfig

import (
	"errors"
	"fmt"
)

// ErrReadonlyWAL is the cause of the FatalMisuseError returned when a
// read-only handle is opened on a database already in WAL mode.
// See https://www.sqlite.org/wal.html#readonly.
var ErrReadonlyWAL = errors.New("dbconfig: read-only WAL databases are not supported")

// ConfigError reports which config stopped a chain.
type ConfigError struct {
	// Name is the failing config's name.
	Name string

	// Order is the failing config's order.
	Order Order

	// Err is the error returned by the config.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("dbconfig: config %q (%s) failed: %v", e.Name, e.Order, e.Err)
}

// Unwrap returns the config's own error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FatalMisuseError marks a caller contract violation with no safe way to
// continue using the handle. The calling layer must close the handle and
// must not retry the configuration.
type FatalMisuseError struct {
	// Path is the database the handle was opened on.
	Path string

	// Err describes the misuse.
	Err error
}

// Error implements the error interface.
func (e *FatalMisuseError) Error() string {
	return fmt.Sprintf("dbconfig: fatal misuse on %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FatalMisuseError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err contains a FatalMisuseError.
func IsFatal(err error) bool {
	var fe *FatalMisuseError
	return errors.As(err, &fe)
}
