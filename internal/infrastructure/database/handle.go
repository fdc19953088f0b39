package database

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/graystore/internal/dbconfig"
	"github.com/nerrad567/graystore/internal/trace"
)

// WAL file layout constants.
const (
	// walHeaderSize is the size of the WAL file header in bytes.
	walHeaderSize = 32

	// walFrameHeaderSize is the size of each frame header in bytes.
	walFrameHeaderSize = 24

	// defaultPageSize is used when the page size cannot be read.
	defaultPageSize = 4096
)

// restoreAutoCheckpoint puts the engine's own checkpointing back for chains
// that register no committed hook.
const restoreAutoCheckpoint = "PRAGMA wal_autocheckpoint = 1000"

// Handle is one SQLite connection as seen by configs.
// It implements dbconfig.Handle.
//
// Thread Safety: database/sql hands a connection to one goroutine at a time.
// The mutex only guards the sinks and hooks, which configs replace.
type Handle struct {
	raw      *sqlite3.SQLiteConn
	path     string
	readonly bool
	pageSize int

	committed atomic.Bool

	mu    sync.Mutex
	sql   trace.SQLTrace
	perf  trace.PerformanceTrace
	hooks []dbconfig.CommittedHook

	// Footprint of the current unit of work.
	inTx    bool
	fp      map[string]int
	fpStart time.Time
}

var _ dbconfig.Handle = (*Handle)(nil)

func newHandle(raw *sqlite3.SQLiteConn, path string, readonly bool) *Handle {
	h := &Handle{
		raw:      raw,
		path:     path,
		readonly: readonly,
		pageSize: defaultPageSize,
	}
	raw.RegisterCommitHook(func() int {
		// Runs inside sqlite3_step; only flag the commit here.
		h.committed.Store(true)
		return 0
	})
	return h
}

// Path implements dbconfig.Handle.
func (h *Handle) Path() string { return h.path }

// IsReadonly implements dbconfig.Handle.
func (h *Handle) IsReadonly() bool { return h.readonly }

// Prepare implements dbconfig.Handle.
func (h *Handle) Prepare(ctx context.Context, query string) (dbconfig.Statement, error) {
	st, err := h.raw.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &statement{ctx: ctx, handle: h, query: query, stmt: st}, nil
}

// Exec implements dbconfig.Handle.
func (h *Handle) Exec(ctx context.Context, query string) error {
	h.beginStatement(query)
	_, err := h.raw.ExecContext(ctx, query, nil)
	h.endStatement()
	return err
}

// SetCipherKey implements dbconfig.Handle. On builds without SQLCipher the
// key pragma is accepted and ignored by the engine.
func (h *Handle) SetCipherKey(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	query := fmt.Sprintf(`PRAGMA key = "x'%s'"`, hex.EncodeToString(key))
	// Not traced: the statement text carries the key.
	_, err := h.raw.ExecContext(ctx, query, nil)
	return err
}

// SetPerformanceTrace implements dbconfig.Handle.
func (h *Handle) SetPerformanceTrace(fn trace.PerformanceTrace) {
	h.mu.Lock()
	h.perf = fn
	h.mu.Unlock()
}

// SetSQLTrace implements dbconfig.Handle.
func (h *Handle) SetSQLTrace(fn trace.SQLTrace) {
	h.mu.Lock()
	h.sql = fn
	h.mu.Unlock()
}

// RegisterCommittedHook implements dbconfig.Handle.
func (h *Handle) RegisterCommittedHook(hook dbconfig.CommittedHook) {
	if hook == nil {
		return
	}
	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

// WALPages returns the number of frames currently in the write-ahead log.
func (h *Handle) WALPages() int {
	info, err := os.Stat(h.path + "-wal")
	if err != nil || info.Size() <= walHeaderSize {
		return 0
	}
	return int((info.Size() - walHeaderSize) / int64(h.pageSize+walFrameHeaderSize))
}

// configure drops the sinks and hooks from any earlier chain, applies chain
// and reads the page size used for WAL accounting. Without a committed hook
// the engine checkpoints on its own again.
func (h *Handle) configure(ctx context.Context, chain *dbconfig.Chain) error {
	h.mu.Lock()
	h.sql = nil
	h.perf = nil
	h.hooks = nil
	h.mu.Unlock()

	if err := chain.Apply(ctx, h); err != nil {
		return err
	}

	h.mu.Lock()
	hooked := len(h.hooks) > 0
	h.mu.Unlock()
	if !hooked {
		if _, err := h.raw.ExecContext(ctx, restoreAutoCheckpoint, nil); err != nil {
			return fmt.Errorf("restoring autocheckpoint: %w", err)
		}
	}

	if size, err := h.queryInt(ctx, "PRAGMA page_size"); err == nil && size > 0 {
		h.pageSize = size
	}
	return nil
}

// queryInt runs an untraced single-value query.
func (h *Handle) queryInt(ctx context.Context, query string) (int, error) {
	rows, err := h.raw.QueryContext(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	defer rows.Close() //nolint:errcheck // read-only query

	dest := make([]driver.Value, len(rows.Columns()))
	if err := rows.Next(dest); err != nil {
		return 0, err
	}
	if len(dest) == 0 {
		return 0, errors.New("no columns")
	}
	n, err := strconv.Atoi(textValue(dest[0]))
	if err != nil {
		return 0, fmt.Errorf("parsing %q result: %w", query, err)
	}
	return n, nil
}

// beginStatement reports query to the SQL sink and opens a footprint if
// none is in progress.
func (h *Handle) beginStatement(query string) {
	h.mu.Lock()
	sqlTrace := h.sql
	if h.perf != nil {
		if h.fp == nil {
			h.fp = make(map[string]int)
			h.fpStart = time.Now()
		}
		h.fp[query]++
	}
	h.mu.Unlock()

	if sqlTrace != nil {
		sqlTrace(query)
	}
}

// endStatement fires committed hooks if the statement committed, and
// flushes the footprint outside of an explicit transaction.
func (h *Handle) endStatement() {
	h.fireCommitted()

	h.mu.Lock()
	inTx := h.inTx
	h.mu.Unlock()
	if !inTx {
		h.flushFootprint()
	}
}

func (h *Handle) beginTx() {
	h.mu.Lock()
	h.inTx = true
	h.mu.Unlock()
}

func (h *Handle) endTx() {
	h.fireCommitted()

	h.mu.Lock()
	h.inTx = false
	h.mu.Unlock()
	h.flushFootprint()
}

func (h *Handle) fireCommitted() {
	if !h.committed.Swap(false) {
		return
	}

	h.mu.Lock()
	hooks := append([]dbconfig.CommittedHook(nil), h.hooks...)
	h.mu.Unlock()
	if len(hooks) == 0 {
		return
	}

	pages := h.WALPages()
	for _, hook := range hooks {
		hook(h.path, pages)
	}
}

func (h *Handle) flushFootprint() {
	h.mu.Lock()
	perf := h.perf
	statements := h.fp
	started := h.fpStart
	h.fp = nil
	h.mu.Unlock()

	if perf == nil || len(statements) == 0 {
		return
	}
	perf(trace.Footprint{
		Path:       h.path,
		Statements: statements,
		Cost:       time.Since(started),
	})
}

// statement adapts a driver statement to dbconfig.Statement.
type statement struct {
	ctx    context.Context
	handle *Handle
	query  string
	stmt   driver.Stmt
	args   []driver.NamedValue
	rows   driver.Rows
	row    []driver.Value
	done   bool
}

// Bind implements dbconfig.Statement.
func (s *statement) Bind(index int, value any) {
	if v, err := driver.DefaultParameterConverter.ConvertValue(value); err == nil {
		value = v
	}
	for i := range s.args {
		if s.args[i].Ordinal == index {
			s.args[i].Value = value
			return
		}
	}
	s.args = append(s.args, driver.NamedValue{Ordinal: index, Value: value})
}

// Step implements dbconfig.Statement.
func (s *statement) Step() (bool, error) {
	if s.done {
		return false, nil
	}

	if s.rows == nil {
		q, ok := s.stmt.(driver.StmtQueryContext)
		if !ok {
			return false, fmt.Errorf("statement %q does not support queries", s.query)
		}
		s.handle.beginStatement(s.query)
		rows, err := q.QueryContext(s.ctx, s.args)
		if err != nil {
			s.finish()
			return false, err
		}
		s.rows = rows
		s.row = make([]driver.Value, len(rows.Columns()))
	}

	if err := s.rows.Next(s.row); err != nil {
		s.finish()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Text implements dbconfig.Statement.
func (s *statement) Text(column int) string {
	if column < 0 || column >= len(s.row) {
		return ""
	}
	return textValue(s.row[column])
}

// Finalize implements dbconfig.Statement.
func (s *statement) Finalize() error {
	s.finish()
	return s.stmt.Close()
}

func (s *statement) finish() {
	if s.done {
		return
	}
	s.done = true
	if s.rows != nil {
		s.rows.Close() //nolint:errcheck // statement is being released
		s.handle.endStatement()
	}
}

func textValue(v driver.Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
