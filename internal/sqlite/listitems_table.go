package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// ListitemsTable is the gateway of the listitems table in one scope.
type ListitemsTable struct {
	*Gateway[*types.Listitem]
}

func newListitemsTable(conn *Conn, scope Scope, logger *slog.Logger) *ListitemsTable {
	t := newTable(conn, TableConfig{Name: TableListitems, Scope: scope, Parent: "list_id"}, logger)
	return &ListitemsTable{Gateway: newGateway(t, types.ListitemFromBackend)}
}

// ItemsOf returns a query for the items of listID in display order.
func ItemsOf(listID int64) Query {
	return Query{
		Where:   []string{"list_id = ?"},
		Args:    []any{listID},
		OrderBy: `"order", id`,
	}
}

// FetchVisible returns the items of listID in scope whose list is active.
// Items of a trashed list are trashed with it even when their own deleted
// column is empty.
func (t *ListitemsTable) FetchVisible(ctx context.Context, listID int64) ([]*types.Listitem, error) {
	q := ItemsOf(listID)
	q.Where = append(q.Where, "list_id IN (SELECT id FROM lists WHERE deleted IS NULL)")
	return t.FetchAll(ctx, q)
}

// NextOrder returns one past the highest display order among the active
// items of listID.
func (t *ListitemsTable) NextOrder(ctx context.Context, listID int64) (int64, error) {
	n, err := t.conn.queryInt(ctx,
		`SELECT COALESCE(MAX("order"), -1) + 1 AS n FROM listitems WHERE list_id = ? AND deleted IS NULL`,
		listID)
	if err != nil {
		return 0, fmt.Errorf("next item order of list %d: %w", listID, err)
	}
	return n, nil
}

// TrashedBefore returns the ids of trashed items deleted at or before cutoff.
func (t *ListitemsTable) TrashedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return t.conn.queryIDs(ctx,
		`SELECT id FROM listitems WHERE deleted IS NOT NULL AND deleted <= ? ORDER BY id`,
		cutoff.UnixMilli())
}

// TrashedBeyond returns the ids of trashed items outside the keep most
// recently trashed of each list, oldest first.
func (t *ListitemsTable) TrashedBeyond(ctx context.Context, keep int) ([]int64, error) {
	return t.conn.queryIDs(ctx,
		`SELECT id FROM (
            SELECT id, COALESCE(deleted, 0) AS d, ROW_NUMBER() OVER (
                PARTITION BY list_id ORDER BY COALESCE(deleted, 0) DESC, id DESC
            ) AS rn
            FROM listitems WHERE deleted IS NOT NULL
        ) WHERE rn > ? ORDER BY d ASC, id ASC`,
		max(keep, 0))
}

// FindLegacy returns the id of the item of listID imported from legacyUUID.
func (t *ListitemsTable) FindLegacy(ctx context.Context, listID int64, legacyUUID string) (int64, bool, error) {
	ids, err := t.conn.queryIDs(ctx,
		`SELECT id FROM listitems WHERE list_id = ? AND legacy_uuid = ? ORDER BY id LIMIT 1`,
		listID, legacyUUID)
	if err != nil {
		return 0, false, fmt.Errorf("find legacy item %q: %w", legacyUUID, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// DeleteOfLists removes every item belonging to listIDs, trashed or not.
func (t *ListitemsTable) DeleteOfLists(ctx context.Context, listIDs ...int64) (int64, error) {
	if len(listIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := t.conn.Tx(ctx, func(ctx context.Context) error {
		for chunk := range slices.Chunk(listIDs, maxParams) {
			res, err := t.conn.Run(ctx,
				`DELETE FROM listitems WHERE list_id IN (`+placeholders(len(chunk))+`)`,
				int64Args(chunk)...)
			if err != nil {
				return err
			}
			total += res.Changes
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete items of lists: %w", err)
	}
	return total, nil
}
