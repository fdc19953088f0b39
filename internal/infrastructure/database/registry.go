package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nerrad567/graystore/internal/checkpoint"
	"github.com/nerrad567/graystore/internal/dbconfig"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks the databases open in the process by absolute path.
// Lookups never open a database.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	dbs    map[string]*DB
	logger Logger
}

var _ checkpoint.Lookup = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		dbs:    make(map[string]*DB),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Registry) getLogger() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Open returns the database already open at cfg.Path, or opens it with
// chain. A fatal configuration error is logged at error level.
func (r *Registry) Open(ctx context.Context, cfg Config, chain *dbconfig.Chain) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}

	if db, ok := r.Get(path); ok {
		return db, nil
	}

	cfg.Path = path
	db, err := Open(ctx, cfg, chain)
	if err != nil {
		if dbconfig.IsFatal(err) {
			r.getLogger().Error("database misuse, handle closed", "path", path, "error", err)
		}
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.dbs[path]; ok {
		// Lost a race with a concurrent Open of the same path.
		r.mu.Unlock()
		db.Close() //nolint:errcheck // duplicate pool
		return existing, nil
	}
	db.onClose = func() { r.remove(path, db) }
	r.dbs[path] = db
	r.mu.Unlock()

	r.getLogger().Info("database opened",
		"path", path,
		"readonly", cfg.Readonly,
		"configs", chain.Names(),
	)
	return db, nil
}

// Get returns the database open at path.
func (r *Registry) Get(path string) (*DB, bool) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.dbs[path]
	return db, ok
}

// Lookup implements checkpoint.Lookup.
func (r *Registry) Lookup(path string) (checkpoint.Target, bool) {
	db, ok := r.Get(path)
	if !ok {
		return nil, false
	}
	return db, true
}

// Paths returns the paths of all open databases, sorted.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	paths := make([]string, 0, len(r.dbs))
	for p := range r.dbs {
		paths = append(paths, p)
	}
	r.mu.RUnlock()
	slices.Sort(paths)
	return paths
}

// Len returns the number of open databases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dbs)
}

// Close closes the database open at path, if any.
func (r *Registry) Close(path string) error {
	db, ok := r.Get(path)
	if !ok {
		return nil
	}
	return db.Close()
}

// CloseAll closes every open database and returns the joined errors.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	dbs := make([]*DB, 0, len(r.dbs))
	for _, db := range r.dbs {
		dbs = append(dbs, db)
	}
	r.mu.RUnlock()

	var errs []error
	for _, db := range dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) remove(path string, db *DB) {
	r.mu.Lock()
	if r.dbs[path] == db {
		delete(r.dbs, path)
	}
	r.mu.Unlock()
	r.getLogger().Debug("database closed", "path", path)
}
