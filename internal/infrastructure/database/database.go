package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/graystore/internal/dbconfig"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// checkpointSQL truncates the WAL after copying every frame back.
	checkpointSQL = "PRAGMA wal_checkpoint(TRUNCATE)"
)

// DB is a pool of configured SQLite connections to one database file.
// Every connection has the DB's current chain applied before use.
type DB struct {
	*sql.DB
	path     string
	readonly bool

	chainMu sync.RWMutex
	chain   *dbconfig.Chain
	gen     uint64

	connects  atomic.Int64
	reconfErr atomic.Pointer[error]
	closed    atomic.Bool
	onClose   func()
}

// Config contains database configuration options.
// These map to an entry of the databases section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// Readonly opens the database without write access. The file must
	// already exist.
	Readonly bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors under contention.
	BusyTimeout int

	// MaxOpenConns limits the pool size. Zero means one connection.
	MaxOpenConns int
}

// Open creates a database pool whose connections are configured by chain.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens one connection and applies chain to it
//  3. Sets appropriate file permissions (0600)
//
// A configuration failure is returned as is, so dbconfig.IsFatal can be
// used to detect misuse.
func Open(ctx context.Context, cfg Config, chain *dbconfig.Chain) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}

	if !cfg.Readonly {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db := &DB{
		path:     path,
		readonly: cfg.Readonly,
		chain:    chain,
	}
	db.DB = sql.OpenDB(&connector{
		db:     db,
		dsn:    buildDSN(path, cfg),
		driver: &sqlite3.SQLiteDriver{},
	})

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.DB.SetMaxOpenConns(maxOpen)
	db.DB.SetMaxIdleConns(maxOpen)
	db.DB.SetConnMaxLifetime(time.Hour)
	db.DB.SetConnMaxIdleTime(connMaxIdleTime)

	// Verify connection; this applies the chain to the first handle.
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.DB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if !cfg.Readonly {
		_ = os.Chmod(path, filePermissions) //nolint:errcheck // permissions are advisory
	}

	return db, nil
}

// buildDSN builds the mattn/go-sqlite3 connection string.
// See: https://github.com/mattn/go-sqlite3#connection-string
func buildDSN(path string, cfg Config) string {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, cfg.BusyTimeout*msPerSecond)
	if cfg.Readonly {
		dsn += "&mode=ro"
	}
	return dsn
}

// Close closes the database pool. It is safe to call more than once.
func (db *DB) Close() error {
	if db.DB == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.onClose != nil {
		db.onClose()
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the absolute filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// IsReadonly reports whether the database was opened read-only.
func (db *DB) IsReadonly() bool {
	return db.readonly
}

// Chain returns the chain applied to new and reused connections.
func (db *DB) Chain() *dbconfig.Chain {
	chain, _ := db.currentChain()
	return chain
}

// Connects returns how many connections have been opened and configured.
func (db *DB) Connects() int64 {
	return db.connects.Load()
}

func (db *DB) currentChain() (*dbconfig.Chain, uint64) {
	db.chainMu.RLock()
	defer db.chainMu.RUnlock()
	return db.chain, db.gen
}

// Reconfigure replaces the chain. Idle connections are reconfigured when
// next taken from the pool; one connection is reconfigured immediately so
// that errors surface here. On failure the previous chain is restored.
func (db *DB) Reconfigure(ctx context.Context, chain *dbconfig.Chain) error {
	if db.closed.Load() {
		return ErrClosed
	}

	previous := db.swapChain(chain)
	db.reconfErr.Store(nil)

	c, err := db.DB.Conn(ctx)
	if err != nil {
		db.swapChain(previous)
		if p := db.reconfErr.Load(); p != nil {
			return fmt.Errorf("reconfiguring %s: %w", db.path, *p)
		}
		return fmt.Errorf("reconfiguring %s: %w", db.path, err)
	}
	return c.Close()
}

// swapChain installs chain under a new generation and returns the old one.
func (db *DB) swapChain(chain *dbconfig.Chain) *dbconfig.Chain {
	db.chainMu.Lock()
	defer db.chainMu.Unlock()
	previous := db.chain
	db.chain = chain
	db.gen++
	return previous
}

func (db *DB) reconfigureFailed(err error) {
	db.reconfErr.Store(&err)
}

// WithHandle runs fn with exclusive use of one configured handle.
func (db *DB) WithHandle(ctx context.Context, fn func(h *Handle) error) error {
	if db.closed.Load() {
		return ErrClosed
	}

	c, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer c.Close() //nolint:errcheck // returns the connection to the pool

	return c.Raw(func(dc any) error {
		cn, ok := dc.(*conn)
		if !ok {
			return ErrNotHandle
		}
		return fn(cn.handle)
	})
}

// WALPages returns the number of frames currently in the write-ahead log.
func (db *DB) WALPages(ctx context.Context) (int, error) {
	var pages int
	err := db.WithHandle(ctx, func(h *Handle) error {
		pages = h.WALPages()
		return nil
	})
	return pages, err
}

// Checkpoint copies the write-ahead log back into the database and
// truncates it. It implements checkpoint.Target.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}

	var busy, logFrames, checkpointed int
	if err := db.DB.QueryRowContext(ctx, checkpointSQL).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("checkpointing %s: %w", db.path, err)
	}
	if busy != 0 {
		return fmt.Errorf("checkpointing %s: %w (%d of %d frames copied)",
			db.path, ErrCheckpointBusy, checkpointed, logFrames)
	}
	return nil
}

// HealthCheck verifies the database is accessible and functioning.
// It performs a simple query to ensure the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ExecContext executes a query that doesn't return rows (INSERT, UPDATE, DELETE).
// This is a convenience wrapper that provides consistent error handling.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// BeginTx starts a new transaction with the given options.
// The statements of a transaction are reported as one footprint.
//
// Example:
//
//	tx, err := db.BeginTx(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() // No-op if committed
//
//	// ... execute queries on tx ...
//
//	return tx.Commit()
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
