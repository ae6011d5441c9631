// Package trash implements the soft-delete lifecycle of lists and listitems:
// moving them to the trash, restoring them, and purging them permanently by
// age, by count, or on request.
package trash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/lists/internal/metrics"
	"github.com/mesh-intelligence/lists/internal/sqlite"
	"github.com/mesh-intelligence/lists/pkg/types"
)

// Purged counts the rows a purge removed.
type Purged struct {
	Lists int64 `json:"lists"`
	Items int64 `json:"items"`
}

// Engine runs trash transitions on an attached backend.
type Engine struct {
	backend *sqlite.Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces the time source used for deleted and modified stamps
// and for retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over b.
func New(b *sqlite.Backend, opts ...Option) *Engine {
	e := &Engine{backend: b, logger: b.Logger(), now: types.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) stamp() time.Time {
	return e.now().Truncate(time.Millisecond)
}

// tx runs fn in one transaction on the backend connection.
func (e *Engine) tx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	conn, err := e.backend.Conn()
	if err != nil {
		return err
	}
	if err := conn.Tx(ctx, fn); err != nil {
		e.logger.Error("trash operation failed", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TrashLists moves the active lists with ids to the trash and returns how
// many moved. Ids that are not active lists are skipped. The items of a
// trashed list keep their own deleted column and are hidden with the list.
func (e *Engine) TrashLists(ctx context.Context, ids ...int64) (int64, error) {
	var n int64
	err := e.tx(ctx, "trash lists", func(ctx context.Context) error {
		at := e.stamp()
		for _, id := range ids {
			l, err := e.backend.Lists().FetchOne(ctx, id, true)
			if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidID) {
				continue
			}
			if err != nil {
				return err
			}
			l.SetDeleted(at)
			if _, err := e.backend.AllLists().Upsert(ctx, l); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.Trashed(metrics.KindList, n)
	e.logger.Debug("lists trashed", "requested", len(ids), "trashed", n)
	return n, nil
}

// RestoreLists moves trashed lists back to the active set. Restored lists
// are numbered from one past the highest active order, in the order the ids
// are given; with no ids every trashed list is restored in its previous
// display order.
func (e *Engine) RestoreLists(ctx context.Context, ids ...int64) (int64, error) {
	var n int64
	err := e.tx(ctx, "restore lists", func(ctx context.Context) error {
		lists, err := e.trashedLists(ctx, ids)
		if err != nil {
			return err
		}
		next, err := e.backend.Lists().NextOrder(ctx)
		if err != nil {
			return err
		}
		at := e.stamp()
		for _, l := range lists {
			l.SetDeleted(time.Time{})
			l.SetOrder(next)
			l.Touch(at)
			if _, err := e.backend.AllLists().Upsert(ctx, l); err != nil {
				return err
			}
			next++
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.Restored(metrics.KindList, n)
	return n, nil
}

func (e *Engine) trashedLists(ctx context.Context, ids []int64) ([]*types.List, error) {
	trash := e.backend.ListsTrash()
	if len(ids) == 0 {
		return trash.FetchAll(ctx, sqlite.ByOrder())
	}
	out := make([]*types.List, 0, len(ids))
	for _, id := range ids {
		l, err := trash.FetchOne(ctx, id, true)
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// TrashItems moves active items of listID to the trash; with no ids every
// active item of the list is trashed. Locked items are skipped unless force
// is set. The list is touched when anything moved.
func (e *Engine) TrashItems(ctx context.Context, listID int64, force bool, ids ...int64) (int64, error) {
	var n, skipped int64
	err := e.tx(ctx, "trash items", func(ctx context.Context) error {
		items, err := e.itemsOf(ctx, e.backend.Items(), listID, ids)
		if err != nil {
			return err
		}
		at := e.stamp()
		for _, it := range items {
			if it.Locked() && !force {
				skipped++
				continue
			}
			it.SetDeleted(at)
			if _, err := e.backend.AllItems().Upsert(ctx, it); err != nil {
				return err
			}
			n++
		}
		if n > 0 {
			return e.backend.AllLists().Touch(ctx, at, listID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		e.logger.Info("locked items kept", "list", listID, "locked", skipped)
	}
	e.metrics.Trashed(metrics.KindItem, n)
	return n, nil
}

// RestoreItems moves trashed items of listID back to the active set,
// numbering them after the list's highest active order in the order the ids
// are given. With no ids every trashed item of the list is restored in its
// previous display order.
func (e *Engine) RestoreItems(ctx context.Context, listID int64, ids ...int64) (int64, error) {
	var n int64
	err := e.tx(ctx, "restore items", func(ctx context.Context) error {
		items, err := e.itemsOf(ctx, e.backend.ItemsTrash(), listID, ids)
		if err != nil {
			return err
		}
		next, err := e.backend.Items().NextOrder(ctx, listID)
		if err != nil {
			return err
		}
		at := e.stamp()
		for _, it := range items {
			it.SetDeleted(time.Time{})
			it.SetOrder(next)
			it.Touch(at)
			if _, err := e.backend.AllItems().Upsert(ctx, it); err != nil {
				return err
			}
			next++
			n++
		}
		if n > 0 {
			return e.backend.AllLists().Touch(ctx, at, listID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.Restored(metrics.KindItem, n)
	return n, nil
}

// itemsOf loads the items of listID in scope of t, either all of them or
// those with ids in the given order. Ids of other lists are skipped.
func (e *Engine) itemsOf(ctx context.Context, t *sqlite.ListitemsTable, listID int64, ids []int64) ([]*types.Listitem, error) {
	if listID <= 0 {
		return nil, types.ErrInvalidID
	}
	if len(ids) == 0 {
		return t.FetchAll(ctx, sqlite.ItemsOf(listID))
	}
	out := make([]*types.Listitem, 0, len(ids))
	for _, id := range ids {
		it, err := t.FetchOne(ctx, id, true)
		if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if it.ListID() != listID {
			e.logger.Warn("item belongs to another list", "item", id, "list", it.ListID(), "want", listID)
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// PurgeByAge permanently removes trashed lists, with all their items, and
// trashed items whose deleted time is at or before now minus retention.
func (e *Engine) PurgeByAge(ctx context.Context, retention time.Duration) (Purged, error) {
	cutoff := e.now().Add(-retention)
	var p Purged
	err := e.tx(ctx, "purge by age", func(ctx context.Context) error {
		listIDs, err := e.backend.ListsTrash().TrashedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if p, err = e.purgeLists(ctx, e.backend.ListsTrash(), listIDs); err != nil {
			return err
		}
		itemIDs, err := e.backend.ItemsTrash().TrashedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		n, err := e.backend.ItemsTrash().Delete(ctx, itemIDs...)
		p.Items += n
		return err
	})
	if err != nil {
		return Purged{}, err
	}
	e.report("purged trash by age", p, "retention", retention)
	return p, nil
}

// PurgeByCount keeps the limit most recently trashed lists and removes the
// rest with their items. Trashed items are limited the same way per list.
func (e *Engine) PurgeByCount(ctx context.Context, limit int) (Purged, error) {
	var p Purged
	err := e.tx(ctx, "purge by count", func(ctx context.Context) error {
		listIDs, err := e.backend.ListsTrash().TrashedBeyond(ctx, limit)
		if err != nil {
			return err
		}
		if p, err = e.purgeLists(ctx, e.backend.ListsTrash(), listIDs); err != nil {
			return err
		}
		itemIDs, err := e.backend.ItemsTrash().TrashedBeyond(ctx, limit)
		if err != nil {
			return err
		}
		n, err := e.backend.ItemsTrash().Delete(ctx, itemIDs...)
		p.Items += n
		return err
	})
	if err != nil {
		return Purged{}, err
	}
	e.report("purged trash by count", p, "limit", limit)
	return p, nil
}

// ApplyPolicy purges the trash according to the keep-in-trash setting.
// KeepUnlimited purges nothing.
func (e *Engine) ApplyPolicy(ctx context.Context, k types.KeepInTrash) (Purged, error) {
	if d, ok := k.StockPeriod(); ok {
		return e.PurgeByAge(ctx, d)
	}
	if n, ok := k.StockSize(); ok {
		return e.PurgeByCount(ctx, n)
	}
	return Purged{}, nil
}

// DeleteLists permanently removes lists with ids, trashed or not, and every
// item belonging to them.
func (e *Engine) DeleteLists(ctx context.Context, ids ...int64) (Purged, error) {
	var p Purged
	err := e.tx(ctx, "delete lists", func(ctx context.Context) error {
		var err error
		p, err = e.purgeLists(ctx, e.backend.AllLists(), ids)
		return err
	})
	if err != nil {
		return Purged{}, err
	}
	e.report("lists deleted", p)
	return p, nil
}

// DeleteItems permanently removes the items of listID with ids and touches
// the list.
func (e *Engine) DeleteItems(ctx context.Context, listID int64, ids ...int64) (int64, error) {
	var n int64
	err := e.tx(ctx, "delete items", func(ctx context.Context) error {
		items, err := e.itemsOf(ctx, e.backend.AllItems(), listID, ids)
		if err != nil {
			return err
		}
		del := make([]int64, len(items))
		for i, it := range items {
			del[i] = it.ID()
		}
		if n, err = e.backend.AllItems().Delete(ctx, del...); err != nil {
			return err
		}
		if n > 0 {
			return e.backend.AllLists().Touch(ctx, e.stamp(), listID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.report("items deleted", Purged{Items: n}, "list", listID)
	return n, nil
}

// EmptyTrash permanently removes every trashed list with its items and
// every trashed item.
func (e *Engine) EmptyTrash(ctx context.Context) (Purged, error) {
	var p Purged
	err := e.tx(ctx, "empty trash", func(ctx context.Context) error {
		listIDs, err := e.backend.ListsTrash().IDs(ctx)
		if err != nil {
			return err
		}
		if p, err = e.purgeLists(ctx, e.backend.ListsTrash(), listIDs); err != nil {
			return err
		}
		n, err := e.backend.ItemsTrash().Truncate(ctx)
		p.Items += n
		return err
	})
	if err != nil {
		return Purged{}, err
	}
	e.report("trash emptied", p)
	return p, nil
}

// purgeLists deletes the items of listIDs and then the lists themselves
// within the scope of t.
func (e *Engine) purgeLists(ctx context.Context, t *sqlite.ListsTable, listIDs []int64) (Purged, error) {
	if len(listIDs) == 0 {
		return Purged{}, nil
	}
	items, err := e.backend.AllItems().DeleteOfLists(ctx, listIDs...)
	if err != nil {
		return Purged{}, err
	}
	lists, err := t.Delete(ctx, listIDs...)
	if err != nil {
		return Purged{}, err
	}
	return Purged{Lists: lists, Items: items}, nil
}

func (e *Engine) report(msg string, p Purged, args ...any) {
	e.metrics.Purged(metrics.KindList, p.Lists)
	e.metrics.Purged(metrics.KindItem, p.Items)
	if p.Lists == 0 && p.Items == 0 {
		e.logger.Debug(msg, append(args, "lists", 0, "items", 0)...)
		return
	}
	e.logger.Info(msg, append(args, "lists", p.Lists, "items", p.Items)...)
}
