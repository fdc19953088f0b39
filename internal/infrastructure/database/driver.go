package database

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// connector opens SQLite connections and applies the owning DB's chain to
// each one before database/sql sees it.
type connector struct {
	db     *DB
	dsn    string
	driver *sqlite3.SQLiteDriver
}

var _ driver.Connector = (*connector)(nil)

// Connect implements driver.Connector.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	dc, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.db.path, err)
	}
	raw, ok := dc.(*sqlite3.SQLiteConn)
	if !ok {
		dc.Close() //nolint:errcheck // unexpected driver type
		return nil, fmt.Errorf("opening %s: unexpected connection type %T", c.db.path, dc)
	}

	h := newHandle(raw, c.db.path, c.db.readonly)
	chain, gen := c.db.currentChain()
	if err := h.configure(ctx, chain); err != nil {
		raw.Close() //nolint:errcheck // configuration error takes precedence
		return nil, err
	}

	c.db.connects.Add(1)
	return &conn{handle: h, db: c.db, gen: gen}, nil
}

// Driver implements driver.Connector.
func (c *connector) Driver() driver.Driver {
	return c.driver
}

// conn is the driver connection handed to database/sql. It routes
// statements through the Handle so traces and committed hooks fire.
type conn struct {
	handle *Handle
	db     *DB
	gen    uint64
}

var (
	_ driver.Conn               = (*conn)(nil)
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.ConnBeginTx        = (*conn)(nil)
	_ driver.ExecerContext      = (*conn)(nil)
	_ driver.QueryerContext     = (*conn)(nil)
	_ driver.Pinger             = (*conn)(nil)
	_ driver.SessionResetter    = (*conn)(nil)
)

// Prepare implements driver.Conn.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	st, err := c.handle.raw.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{Stmt: st, handle: c.handle, query: query}, nil
}

// Close implements driver.Conn.
func (c *conn) Close() error {
	return c.handle.raw.Close()
}

// Begin implements driver.Conn.
func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	t, err := c.handle.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.handle.beginTx()
	return &tx{Tx: t, handle: c.handle}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.handle.beginStatement(query)
	res, err := c.handle.raw.ExecContext(ctx, query, args)
	c.handle.endStatement()
	return res, err
}

// QueryContext implements driver.QueryerContext.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.handle.beginStatement(query)
	rows, err := c.handle.raw.QueryContext(ctx, query, args)
	if err != nil {
		c.handle.endStatement()
		return nil, err
	}
	return &queryRows{Rows: rows, handle: c.handle}, nil
}

// Ping implements driver.Pinger.
func (c *conn) Ping(ctx context.Context) error {
	return c.handle.raw.Ping(ctx)
}

// ResetSession implements driver.SessionResetter. A connection configured
// with an older chain is reconfigured before reuse; one that cannot be is
// discarded.
func (c *conn) ResetSession(ctx context.Context) error {
	chain, gen := c.db.currentChain()
	if gen == c.gen {
		return nil
	}
	if err := c.handle.configure(ctx, chain); err != nil {
		c.db.reconfigureFailed(err)
		return driver.ErrBadConn
	}
	c.gen = gen
	return nil
}

// stmt routes prepared statement execution through the Handle.
type stmt struct {
	driver.Stmt
	handle *Handle
	query  string
}

// ExecContext implements driver.StmtExecContext.
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	ec, ok := s.Stmt.(driver.StmtExecContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	s.handle.beginStatement(s.query)
	res, err := ec.ExecContext(ctx, args)
	s.handle.endStatement()
	return res, err
}

// QueryContext implements driver.StmtQueryContext.
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	qc, ok := s.Stmt.(driver.StmtQueryContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	s.handle.beginStatement(s.query)
	rows, err := qc.QueryContext(ctx, args)
	if err != nil {
		s.handle.endStatement()
		return nil, err
	}
	return &queryRows{Rows: rows, handle: s.handle}, nil
}

// queryRows ends the statement on the Handle when the rows are closed.
type queryRows struct {
	driver.Rows
	handle *Handle
	closed bool
}

// Close implements driver.Rows.
func (r *queryRows) Close() error {
	err := r.Rows.Close()
	if !r.closed {
		r.closed = true
		r.handle.endStatement()
	}
	return err
}

// tx closes the Handle's footprint when the transaction ends.
type tx struct {
	driver.Tx
	handle *Handle
}

// Commit implements driver.Tx.
func (t *tx) Commit() error {
	err := t.Tx.Commit()
	t.handle.endTx()
	return err
}

// Rollback implements driver.Tx.
func (t *tx) Rollback() error {
	err := t.Tx.Rollback()
	t.handle.endTx()
	return err
}
