package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// Result reports the effect of a write statement. Both values come from the
// statement itself, never from a later query.
type Result struct {
	Changes int64
	LastID  int64
}

// Flusher persists committed data to durable storage. It runs after every
// successful write batch when configured.
type Flusher interface {
	Flush(ctx context.Context, db *sqlx.DB) error
}

// CheckpointFlusher truncates the write-ahead log into the main database file.
type CheckpointFlusher struct{}

// Flush runs a truncating WAL checkpoint.
func (CheckpointFlusher) Flush(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Conn is the single logical connection to one database. While a transaction
// is open every statement runs on it.
type Conn struct {
	name    string
	path    string
	logger  *slog.Logger
	flusher Flusher

	mu sync.Mutex // guards db and tx
	db *sqlx.DB
	tx *sqlx.Tx

	exclusive sync.Mutex // held for the duration of Tx
}

type txKey struct{ conn *Conn }

// Name returns the logical database name.
func (c *Conn) Name() string { return c.name }

// Path returns the database file path.
func (c *Conn) Path() string { return c.path }

func (c *Conn) ext() (sqlx.ExtContext, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, false, fmt.Errorf("%s: %w", c.name, types.ErrNoConnection)
	}
	if c.tx != nil {
		return c.tx, true, nil
	}
	return c.db, false, nil
}

// Run executes a write statement. Outside a transaction a successful write
// is flushed immediately.
func (c *Conn) Run(ctx context.Context, query string, args ...any) (Result, error) {
	ext, inTx, err := c.ext()
	if err != nil {
		return Result{}, err
	}
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		c.logger.Error("write failed", "db", c.name, "query", query, "err", err)
		return Result{}, fmt.Errorf("%w: %s: %w", types.ErrWriteFailed, c.name, err)
	}
	var r Result
	r.Changes, _ = res.RowsAffected()
	r.LastID, _ = res.LastInsertId()
	if !inTx {
		c.flush(ctx)
	}
	return r, nil
}

// Query runs a read statement and returns every row as a Record.
func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]types.Record, error) {
	ext, _, err := c.ext()
	if err != nil {
		return nil, err
	}
	rows, err := ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		out = append(out, types.Record(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.name, err)
	}
	return out, nil
}

// queryIDs runs a query whose first selected column is named id.
func (c *Conn) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	recs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		if id, ok := rec.Int64("id"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// queryInt runs a query selecting a single integer column named n.
func (c *Conn) queryInt(ctx context.Context, query string, args ...any) (int64, error) {
	recs, err := c.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	n, _ := recs[0].Int64("n")
	return n, nil
}

// Begin opens a transaction. It fails when one is already open.
func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("%s: %w", c.name, types.ErrNoConnection)
	}
	if c.tx != nil {
		return fmt.Errorf("%w: %s: transaction already active", types.ErrTransactionFailed, c.name)
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %w", types.ErrTransactionFailed, c.name, err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction and flushes.
func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	tx, db := c.tx, c.db
	c.tx = nil
	c.mu.Unlock()

	if tx == nil {
		return fmt.Errorf("%w: %s: no active transaction", types.ErrTransactionFailed, c.name)
	}
	if err := tx.Commit(); err != nil {
		c.logger.Error("commit failed", "db", c.name, "err", err)
		c.abandon(ctx, db)
		return fmt.Errorf("%w: %s: commit: %w", types.ErrTransactionFailed, c.name, err)
	}
	c.flush(ctx)
	return nil
}

// abandon rolls back a transaction that SQLite kept open after a failed
// COMMIT. database/sql has already released the connection to the pool, and
// the pool holds a single connection, so the ROLLBACK lands on it.
func (c *Conn) abandon(ctx context.Context, db *sqlx.DB) {
	if db == nil {
		return
	}
	if _, err := db.ExecContext(ctx, "ROLLBACK"); err != nil && !noActiveTx(err) {
		c.logger.Warn("rollback after failed commit", "db", c.name, "err", err)
	}
}

func noActiveTx(err error) bool {
	return strings.Contains(err.Error(), "no transaction is active")
}

// Rollback discards the open transaction. It is a no-op without one.
func (c *Conn) Rollback() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()

	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %s: rollback: %w", types.ErrTransactionFailed, c.name, err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Tx runs fn inside a transaction and commits when fn succeeds. Any error
// rolls the whole sequence back. A transaction left open by an earlier
// caller is rolled back first, never committed. Calls nested through the
// ctx passed to fn join the outer transaction.
func (c *Conn) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{c}).(bool); owner {
		return fn(ctx)
	}

	c.exclusive.Lock()
	defer c.exclusive.Unlock()

	if c.InTransaction() {
		c.logger.Warn("rolling back stale transaction", "db", c.name)
		if err := c.Rollback(); err != nil {
			return err
		}
	}
	if err := c.Begin(ctx); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{c}, true)); err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "db", c.name, "err", rbErr)
		}
		return err
	}
	return c.Commit(ctx)
}

func (c *Conn) flush(ctx context.Context) {
	if c.flusher == nil {
		return
	}
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		return
	}
	if err := c.flusher.Flush(ctx, db); err != nil {
		c.logger.Warn("flush failed", "db", c.name, "err", err)
	}
}

// alive reports whether the connection is open and answers a ping. A
// connection inside a transaction is in use and therefore alive.
func (c *Conn) alive(ctx context.Context) bool {
	c.mu.Lock()
	db, tx := c.db, c.tx
	c.mu.Unlock()
	if db == nil {
		return false
	}
	if tx != nil {
		return true
	}
	return db.PingContext(ctx) == nil
}

func (c *Conn) userVersion(ctx context.Context) (int, error) {
	recs, err := c.Query(ctx, "PRAGMA user_version")
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	v, _ := recs[0].Int64("user_version")
	return int(v), nil
}

// Close rolls back any open transaction and closes the database.
func (c *Conn) Close() error {
	if err := c.Rollback(); err != nil {
		c.logger.Warn("rollback on close failed", "db", c.name, "err", err)
	}
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
