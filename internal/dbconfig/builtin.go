package dbconfig

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/graystore/internal/trace"
)

// Built-in config names.
const (
	NameBasic      = "basic"
	NameTrace      = "trace"
	NameCipher     = "cipher"
	NameCheckpoint = "checkpoint"
	NameTokenize   = "tokenize"
)

// Pragmas issued by the basic config.
const (
	pragmaGetJournalMode   = "PRAGMA journal_mode"
	pragmaSetJournalWAL    = "PRAGMA journal_mode = WAL"
	pragmaGetLockingMode   = "PRAGMA locking_mode"
	pragmaSetLockingNormal = "PRAGMA locking_mode = NORMAL"
	pragmaSetSynchronous   = "PRAGMA synchronous = NORMAL"
	pragmaSetFullFsync     = "PRAGMA fullfsync = ON"
)

// pragmaDisableAutoCheckpoint hands checkpointing to the committed hook's
// observer. With the engine's own autocheckpoint off, the WAL only shrinks
// when the observer checkpoints it.
const pragmaDisableAutoCheckpoint = "PRAGMA wal_autocheckpoint = 0"

// registerTokenizerSQL registers a tokenizer under a name. Parameter 1 is
// the name, parameter 2 the tokenizer address blob.
const registerTokenizerSQL = "SELECT fts3_tokenizer(?, ?)"

// Basic returns the config that puts a handle into WAL mode with normal
// locking and synchronous settings.
//
// On a read-only handle nothing is changed; if the database is already in
// WAL mode the config fails with a *FatalMisuseError.
func Basic() Config {
	return Func(NameBasic, OrderBasic, applyBasic)
}

func applyBasic(ctx context.Context, h Handle) error {
	if h.IsReadonly() {
		mode, err := queryText(ctx, h, pragmaGetJournalMode)
		if err != nil {
			return err
		}
		if strings.EqualFold(mode, "wal") {
			return &FatalMisuseError{Path: h.Path(), Err: ErrReadonlyWAL}
		}
		return nil
	}

	locking, err := queryText(ctx, h, pragmaGetLockingMode)
	if err != nil {
		return err
	}
	if !strings.EqualFold(locking, "normal") {
		if err := h.Exec(ctx, pragmaSetLockingNormal); err != nil {
			return fmt.Errorf("setting locking mode: %w", err)
		}
	}

	if err := h.Exec(ctx, pragmaSetSynchronous); err != nil {
		return fmt.Errorf("setting synchronous: %w", err)
	}

	journal, err := queryText(ctx, h, pragmaGetJournalMode)
	if err != nil {
		return err
	}
	if !strings.EqualFold(journal, "wal") {
		if err := h.Exec(ctx, pragmaSetJournalWAL); err != nil {
			return fmt.Errorf("setting journal mode: %w", err)
		}
	}

	if err := h.Exec(ctx, pragmaSetFullFsync); err != nil {
		return fmt.Errorf("setting fullfsync: %w", err)
	}
	return nil
}

// Trace returns the config that copies the sinks currently registered in
// traces onto each handle. It never fails.
func Trace(traces *trace.Registry) Config {
	return Func(NameTrace, OrderTrace, func(_ context.Context, h Handle) error {
		if traces == nil {
			return nil
		}
		if fn := traces.PerformanceTrace(); fn != nil {
			h.SetPerformanceTrace(fn)
		}
		if fn := traces.SQLTrace(); fn != nil {
			h.SetSQLTrace(fn)
		}
		return nil
	})
}

// CipherConfig installs an encryption key and cipher page size.
// It owns a private copy of the key bytes.
type CipherConfig struct {
	key      []byte
	pageSize int
}

// Cipher returns a CipherConfig holding a copy of key. A pageSize of zero
// or less leaves the engine's cipher page size unchanged.
func Cipher(key []byte, pageSize int) CipherConfig {
	return CipherConfig{key: slices.Clone(key), pageSize: pageSize}
}

// Name implements Config.
func (c CipherConfig) Name() string { return NameCipher }

// Order implements Config.
func (c CipherConfig) Order() Order { return OrderCipher }

// KeySize returns the key length in bytes.
func (c CipherConfig) KeySize() int { return len(c.key) }

// PageSize returns the requested cipher page size.
func (c CipherConfig) PageSize() int { return c.pageSize }

// String describes the config without revealing the key.
func (c CipherConfig) String() string {
	return fmt.Sprintf("cipher(key=<%d bytes>, page_size=%d)", len(c.key), c.pageSize)
}

// Apply installs the key, then sets the cipher page size. The page size is
// not attempted when the key cannot be installed.
func (c CipherConfig) Apply(ctx context.Context, h Handle) error {
	if err := h.SetCipherKey(ctx, slices.Clone(c.key)); err != nil {
		return fmt.Errorf("setting cipher key: %w", err)
	}

	if c.pageSize <= 0 {
		return nil
	}

	if err := h.Exec(ctx, fmt.Sprintf("PRAGMA cipher_page_size = %d", c.pageSize)); err != nil {
		return fmt.Errorf("setting cipher page size: %w", err)
	}
	return nil
}

// CommitObserver receives commit notifications from handles.
type CommitObserver interface {
	Observe(path string, pages int)
}

// Checkpoint returns the config that turns off the engine's autocheckpoint
// and registers a committed hook forwarding every commit's WAL page count to
// obs. Deciding whether a checkpoint is needed is left to obs.
func Checkpoint(obs CommitObserver) Config {
	return Func(NameCheckpoint, OrderCheckpoint, func(ctx context.Context, h Handle) error {
		if obs == nil {
			return nil
		}
		if err := h.Exec(ctx, pragmaDisableAutoCheckpoint); err != nil {
			return fmt.Errorf("disabling autocheckpoint: %w", err)
		}
		h.RegisterCommittedHook(obs.Observe)
		return nil
	})
}

// TokenizerLookup resolves a tokenizer name to its address payload.
type TokenizerLookup interface {
	Address(name string) ([]byte, error)
}

// Tokenize returns the config that registers each named tokenizer on the
// handle, in order, stopping at the first failure.
func Tokenize(lookup TokenizerLookup, names ...string) Config {
	names = slices.Clone(names)
	return Func(NameTokenize, OrderTokenize, func(ctx context.Context, h Handle) error {
		for _, name := range names {
			if err := registerTokenizer(ctx, h, lookup, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func registerTokenizer(ctx context.Context, h Handle, lookup TokenizerLookup, name string) error {
	if lookup == nil {
		return fmt.Errorf("tokenizer %q: no tokenizer registry", name)
	}
	address, err := lookup.Address(name)
	if err != nil {
		return fmt.Errorf("tokenizer %q: %w", name, err)
	}

	stmt, err := h.Prepare(ctx, registerTokenizerSQL)
	if err != nil {
		return fmt.Errorf("tokenizer %q: preparing: %w", name, err)
	}
	stmt.Bind(1, name)
	stmt.Bind(2, address)

	if _, err := stmt.Step(); err != nil {
		stmt.Finalize() //nolint:errcheck // step error takes precedence
		return fmt.Errorf("tokenizer %q: registering: %w", name, err)
	}
	if err := stmt.Finalize(); err != nil {
		return fmt.Errorf("tokenizer %q: finalizing: %w", name, err)
	}
	return nil
}

// Default returns the chain applied when no other policy is requested:
// trace, basic and checkpoint.
func Default(traces *trace.Registry, obs CommitObserver) *Chain {
	return NewChain(Trace(traces), Basic(), Checkpoint(obs))
}
