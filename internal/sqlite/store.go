package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// StoreList writes list and every loaded item that needs writing in one
// transaction. Virtual items are inserted under the list's id. Ids assigned
// by the store are adopted by the in-memory entities only after the commit
// succeeds; on failure nothing is written and every entity stays dirty.
func (b *Backend) StoreList(ctx context.Context, list *types.List, force bool) (int64, error) {
	conn, err := b.Conn()
	if err != nil {
		return 0, err
	}
	lists, items := b.AllLists(), b.AllItems()

	listID := list.ID()
	remap := make(map[*types.Listitem]int64)
	err = conn.Tx(ctx, func(ctx context.Context) error {
		if force || list.Dirty() {
			id, err := lists.write(ctx, list.ID(), list.IsVirtual(), list.ToBackend(force))
			if err != nil {
				return err
			}
			listID = id
		}
		for _, it := range list.Items() {
			if !force && !it.Dirty() && it.ListID() == listID {
				continue
			}
			rec := it.ToBackend(force)
			if it.ListID() != listID {
				rec["list_id"] = listID
			}
			id, err := items.write(ctx, it.ID(), it.IsVirtual(), rec)
			if err != nil {
				return fmt.Errorf("store item %d of list %d: %w", it.ID(), listID, err)
			}
			remap[it] = id
		}
		return nil
	})
	if err != nil {
		b.logger.Error("store list failed", "list", list.ID(), "err", err)
		return 0, err
	}

	list.MarkStored(listID)
	for it, id := range remap {
		it.SetListID(listID)
		it.MarkStored(id)
	}
	return listID, nil
}

// StoreItem writes a single item. The item must belong to a stored list,
// live or trashed; the parent is checked in the same transaction as the
// write.
func (b *Backend) StoreItem(ctx context.Context, item *types.Listitem, force bool) (int64, error) {
	if item.ListID() <= 0 {
		return 0, fmt.Errorf("%w: item %d has no stored list", types.ErrUnresolvableReference, item.ID())
	}
	conn, err := b.Conn()
	if err != nil {
		return 0, err
	}

	var id int64
	err = conn.Tx(ctx, func(ctx context.Context) error {
		if _, err := b.AllLists().FetchOne(ctx, item.ListID(), true); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: item %d: list %d: %w", types.ErrUnresolvableReference, item.ID(), item.ListID(), err)
			}
			return err
		}
		id, err = b.AllItems().Store(ctx, item, force)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
