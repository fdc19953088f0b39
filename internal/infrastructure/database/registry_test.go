package database

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nerrad567/graystore/internal/dbconfig"
)

func TestRegistry_OpenReturnsExisting(t *testing.T) {
	reg := NewRegistry()
	t.Cleanup(func() { reg.CloseAll() }) //nolint:errcheck // Test cleanup

	cfg := Config{Path: filepath.Join(t.TempDir(), "a.db"), BusyTimeout: 5}
	ctx := context.Background()

	first, err := reg.Open(ctx, cfg, dbconfig.Default(nil, nil))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	second, err := reg.Open(ctx, cfg, dbconfig.Default(nil, nil))
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if first != second {
		t.Error("Open() of the same path returned a different DB")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_LookupNeverOpens(t *testing.T) {
	reg := NewRegistry()
	path := filepath.Join(t.TempDir(), "never.db")

	if _, ok := reg.Lookup(path); ok {
		t.Fatal("Lookup() found a database that was never opened")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Lookup() created %s", path)
	}
}

func TestRegistry_LookupReturnsCheckpointTarget(t *testing.T) {
	reg := NewRegistry()
	t.Cleanup(func() { reg.CloseAll() }) //nolint:errcheck // Test cleanup

	db, err := reg.Open(context.Background(),
		Config{Path: filepath.Join(t.TempDir(), "a.db")}, dbconfig.Default(nil, nil))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	target, ok := reg.Lookup(db.Path())
	if !ok {
		t.Fatal("Lookup() did not find an open database")
	}
	if err := target.Checkpoint(context.Background()); err != nil {
		t.Errorf("Checkpoint() error = %v", err)
	}
}

func TestRegistry_CloseRemoves(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()
	ctx := context.Background()

	var paths []string
	for _, name := range []string{"b.db", "a.db", "c.db"} {
		db, err := reg.Open(ctx, Config{Path: filepath.Join(dir, name)}, dbconfig.Default(nil, nil))
		if err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
		paths = append(paths, db.Path())
	}

	slices.Sort(paths)
	if got := reg.Paths(); !slices.Equal(got, paths) {
		t.Errorf("Paths() = %v, want %v", got, paths)
	}

	if err := reg.Close(paths[0]); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := reg.Get(paths[0]); ok {
		t.Error("Get() found a closed database")
	}

	// Closing the DB directly also removes it.
	db, _ := reg.Get(paths[1])
	if err := db.Close(); err != nil {
		t.Fatalf("DB.Close() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}

	if err := reg.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after CloseAll = %d, want 0", reg.Len())
	}
}

func TestRegistry_FatalOpenNotRegistered(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wal.db")
	ctx := context.Background()

	writer := openTestDBAt(t, Config{Path: dbPath, BusyTimeout: 5}, dbconfig.Default(nil, nil))
	if _, err := writer.ExecContext(ctx, "CREATE TABLE t (v TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	reg := NewRegistry()
	_, err := reg.Open(ctx, Config{Path: dbPath, Readonly: true}, dbconfig.Default(nil, nil))
	if !dbconfig.IsFatal(err) {
		t.Fatalf("Open() error = %v, want fatal misuse", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after failed open, want 0", reg.Len())
	}
}
