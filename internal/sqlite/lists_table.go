package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// ListsTable is the gateway of the lists table in one scope.
type ListsTable struct {
	*Gateway[*types.List]
}

func newListsTable(conn *Conn, scope Scope, logger *slog.Logger) *ListsTable {
	t := newTable(conn, TableConfig{Name: TableLists, Scope: scope}, logger)
	return &ListsTable{Gateway: newGateway(t, types.ListFromBackend)}
}

// peekColumns adds the number of live items to every fetched list.
const peekColumns = `*, (SELECT COUNT(*) FROM listitems i
    WHERE i.list_id = lists.id AND i.deleted IS NULL) AS item_count`

// ByOrder returns a query over the scope ordered by display order.
func ByOrder() Query {
	return Query{OrderBy: `"order", id`}
}

// FetchPeek fetches lists ordered by display order with their live item
// counts but without loading the items.
func (t *ListsTable) FetchPeek(ctx context.Context) ([]*types.List, error) {
	q := ByOrder()
	q.Columns = peekColumns
	return t.FetchAll(ctx, q)
}

// NextOrder returns one past the highest display order among active lists.
func (t *ListsTable) NextOrder(ctx context.Context) (int64, error) {
	n, err := t.conn.queryInt(ctx,
		`SELECT COALESCE(MAX("order"), -1) + 1 AS n FROM lists WHERE deleted IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("next list order: %w", err)
	}
	return n, nil
}

// TrashedBefore returns the ids of trashed lists deleted at or before cutoff.
func (t *ListsTable) TrashedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return t.conn.queryIDs(ctx,
		`SELECT id FROM lists WHERE deleted IS NOT NULL AND deleted <= ? ORDER BY id`,
		cutoff.UnixMilli())
}

// TrashedBeyond returns the ids of the trashed lists outside the keep most
// recently trashed, oldest first. Lists without a deleted time sort as time
// zero; ties are broken by id.
func (t *ListsTable) TrashedBeyond(ctx context.Context, keep int) ([]int64, error) {
	return t.conn.queryIDs(ctx,
		`SELECT id FROM (
            SELECT id, COALESCE(deleted, 0) AS d FROM lists WHERE deleted IS NOT NULL
            ORDER BY d DESC, id DESC LIMIT -1 OFFSET ?
        ) ORDER BY d ASC, id ASC`,
		max(keep, 0))
}

// FindLegacy returns the id of the list imported from legacyUUID.
func (t *ListsTable) FindLegacy(ctx context.Context, legacyUUID string) (int64, bool, error) {
	ids, err := t.conn.queryIDs(ctx,
		`SELECT id FROM lists WHERE legacy_uuid = ? ORDER BY id LIMIT 1`, legacyUUID)
	if err != nil {
		return 0, false, fmt.Errorf("find legacy list %q: %w", legacyUUID, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// Touch sets the modified time of the lists with ids.
func (t *ListsTable) Touch(ctx context.Context, at time.Time, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	return t.conn.Tx(ctx, func(ctx context.Context) error {
		for chunk := range slices.Chunk(ids, maxParams) {
			args := append([]any{at.UnixMilli()}, int64Args(chunk)...)
			if _, err := t.conn.Run(ctx,
				`UPDATE lists SET modified = ? WHERE id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
				return err
			}
		}
		return nil
	})
}
