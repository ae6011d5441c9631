package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// Scope selects which rows of a soft-deleting table a gateway sees.
type Scope int

const (
	ScopeAll   Scope = iota // every row
	ScopeLive               // deleted IS NULL
	ScopeTrash              // deleted IS NOT NULL
)

func (s Scope) String() string {
	switch s {
	case ScopeLive:
		return "live"
	case ScopeTrash:
		return "trash"
	}
	return "all"
}

// TableConfig parameterizes a gateway: the physical table, the deleted-column
// scope, and the column referencing the parent table, if any.
type TableConfig struct {
	Name   string
	Scope  Scope
	Parent string
}

// maxParams bounds the number of ids bound into one IN clause.
const maxParams = 500

// Query describes a fetch. Where conditions are ANDed with the table scope.
type Query struct {
	Columns string
	Where   []string
	Args    []any
	OrderBy string
	Desc    bool
	Limit   int
}

// Table runs the untyped statements of one scoped table.
type Table struct {
	conn   *Conn
	cfg    TableConfig
	logger *slog.Logger
}

func newTable(conn *Conn, cfg TableConfig, logger *slog.Logger) *Table {
	return &Table{conn: conn, cfg: cfg, logger: logger}
}

// Identifier names the table and scope in logs and errors.
func (t *Table) Identifier() string {
	return fmt.Sprintf("%s.%s[%s]", t.conn.Name(), t.cfg.Name, t.cfg.Scope)
}

// Config returns the table parameters.
func (t *Table) Config() TableConfig { return t.cfg }

// Conn returns the connection the table runs on.
func (t *Table) Conn() *Conn { return t.conn }

func (t *Table) scopeCond() string {
	switch t.cfg.Scope {
	case ScopeLive:
		return "deleted IS NULL"
	case ScopeTrash:
		return "deleted IS NOT NULL"
	}
	return ""
}

// where joins the scope condition and conds into a WHERE clause, or returns
// the empty string when there is nothing to filter on.
func (t *Table) where(conds ...string) string {
	all := make([]string, 0, len(conds)+1)
	if c := t.scopeCond(); c != "" {
		all = append(all, c)
	}
	for _, c := range conds {
		if c != "" {
			all = append(all, "("+c+")")
		}
	}
	if len(all) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(all, " AND ")
}

func (t *Table) fetchRecords(ctx context.Context, q Query) ([]types.Record, error) {
	cols := q.Columns
	if cols == "" {
		cols = "*"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", cols, t.cfg.Name, t.where(q.Where...))
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY " + q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	recs, err := t.conn.Query(ctx, sb.String(), q.Args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.Identifier(), err)
	}
	return recs, nil
}

// write inserts rec when virtual is set and updates row id otherwise. It
// returns the id of the written row. An update that touches no row fails.
func (t *Table) write(ctx context.Context, id int64, virtual bool, rec types.Record) (int64, error) {
	if virtual {
		return t.insert(ctx, rec)
	}
	return id, t.update(ctx, id, rec)
}

func (t *Table) insert(ctx context.Context, rec types.Record) (int64, error) {
	cols := sortedColumns(rec)
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		args[i] = rec[col]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.cfg.Name, strings.Join(quoted, ", "), placeholders(len(cols)))

	res, err := t.conn.Run(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.Identifier(), err)
	}
	if res.LastID <= 0 {
		return 0, fmt.Errorf("%w: insert into %s: no id assigned", types.ErrWriteFailed, t.Identifier())
	}
	return res.LastID, nil
}

func (t *Table) update(ctx context.Context, id int64, rec types.Record) error {
	if id <= 0 {
		return types.ErrInvalidID
	}
	if len(rec) == 0 {
		return nil
	}
	cols := sortedColumns(rec)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = quoteIdent(col) + " = ?"
		args = append(args, rec[col])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.cfg.Name, strings.Join(sets, ", "))

	res, err := t.conn.Run(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s id %d: %w", t.Identifier(), id, err)
	}
	if res.Changes == 0 {
		t.logger.Error("update affected no row", "table", t.Identifier(), "id", id)
		return fmt.Errorf("%w: update %s id %d: %w", types.ErrWriteFailed, t.Identifier(), id, types.ErrNotFound)
	}
	return nil
}

// Delete removes the rows with the given ids inside the table scope and
// returns how many were removed. Zero is a valid result.
func (t *Table) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := t.conn.Tx(ctx, func(ctx context.Context) error {
		for chunk := range slices.Chunk(ids, maxParams) {
			query := "DELETE FROM " + t.cfg.Name + t.where("id IN ("+placeholders(len(chunk))+")")
			res, err := t.conn.Run(ctx, query, int64Args(chunk)...)
			if err != nil {
				return err
			}
			total += res.Changes
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.Identifier(), err)
	}
	return total, nil
}

// Truncate removes every row in the table scope.
func (t *Table) Truncate(ctx context.Context) (int64, error) {
	res, err := t.conn.Run(ctx, "DELETE FROM "+t.cfg.Name+t.where())
	if err != nil {
		return 0, fmt.Errorf("truncate %s: %w", t.Identifier(), err)
	}
	return res.Changes, nil
}

// IDs returns the ids of every row in the table scope in ascending order.
func (t *Table) IDs(ctx context.Context) ([]int64, error) {
	ids, err := t.conn.queryIDs(ctx, "SELECT id FROM "+t.cfg.Name+t.where()+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("ids of %s: %w", t.Identifier(), err)
	}
	return ids, nil
}

// Count returns the number of rows in the table scope.
func (t *Table) Count(ctx context.Context) (int64, error) {
	n, err := t.conn.queryInt(ctx, "SELECT COUNT(*) AS n FROM "+t.cfg.Name+t.where())
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Identifier(), err)
	}
	return n, nil
}

// orphans scans every row in scope and returns those whose parent id is not
// in validIDs. An empty validIDs makes every row an orphan.
func (t *Table) orphans(ctx context.Context, validIDs []int64) ([]int64, error) {
	if t.cfg.Parent == "" {
		return nil, fmt.Errorf("%s has no parent column", t.Identifier())
	}
	recs, err := t.conn.Query(ctx, fmt.Sprintf("SELECT id, %s AS parent FROM %s%s",
		quoteIdent(t.cfg.Parent), t.cfg.Name, t.where()))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.Identifier(), err)
	}

	valid := make(map[int64]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}
	var out []int64
	for _, rec := range recs {
		id, ok := rec.Int64("id")
		if !ok {
			continue
		}
		parent, _ := rec.Int64("parent")
		if _, ok := valid[parent]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// CountOrphaned returns how many rows in scope reference a parent outside
// validIDs.
func (t *Table) CountOrphaned(ctx context.Context, validIDs []int64) (int64, error) {
	ids, err := t.orphans(ctx, validIDs)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// PurgeOrphaned removes every row in scope whose parent is not in validIDs
// and returns how many were removed.
func (t *Table) PurgeOrphaned(ctx context.Context, validIDs []int64) (int64, error) {
	var removed int64
	err := t.conn.Tx(ctx, func(ctx context.Context) error {
		ids, err := t.orphans(ctx, validIDs)
		if err != nil {
			return err
		}
		removed, err = t.Delete(ctx, ids...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func sortedColumns(rec types.Record) []string {
	cols := make([]string, 0, len(rec))
	for col := range rec {
		if col == "id" {
			continue
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
