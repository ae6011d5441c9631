package trash

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lists/internal/sqlite"
	"github.com/mesh-intelligence/lists/pkg/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Engine, *sqlite.Backend, *clock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := sqlite.NewBackend(sqlite.WithLogger(logger))
	config := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	require.NoError(t, b.Attach(context.Background(), config))
	t.Cleanup(func() { b.Detach() })

	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	return New(b, WithLogger(logger), WithClock(c.now)), b, c
}

func newList(t *testing.T, b *sqlite.Backend, name string) *types.List {
	t.Helper()
	ctx := context.Background()
	order, err := b.Lists().NextOrder(ctx)
	require.NoError(t, err)
	l := types.NewList(name, order)
	_, err = b.AllLists().Upsert(ctx, l)
	require.NoError(t, err)
	return l
}

func newItem(t *testing.T, b *sqlite.Backend, listID int64, text string, locked bool) *types.Listitem {
	t.Helper()
	ctx := context.Background()
	order, err := b.Items().NextOrder(ctx, listID)
	require.NoError(t, err)
	it := types.NewListitem(listID, text, order)
	it.SetLocked(locked)
	_, err = b.AllItems().Upsert(ctx, it)
	require.NoError(t, err)
	return it
}

func fetchList(t *testing.T, b *sqlite.Backend, id int64) *types.List {
	t.Helper()
	l, err := b.AllLists().FetchOne(context.Background(), id, false)
	require.NoError(t, err)
	return l
}

func fetchItem(t *testing.T, b *sqlite.Backend, id int64) *types.Listitem {
	t.Helper()
	it, err := b.AllItems().FetchOne(context.Background(), id, false)
	require.NoError(t, err)
	return it
}

func count(t *testing.T, tbl interface {
	Count(context.Context) (int64, error)
}) int64 {
	t.Helper()
	n, err := tbl.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestEngine_TrashThenRestoreList(t *testing.T) {
	ctx := context.Background()
	e, b, c := setup(t)
	a := newList(t, b, "a")
	x := newList(t, b, "x")
	newList(t, b, "z")

	n, err := e.TrashLists(ctx, x.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	deleted, ok := fetchList(t, b, x.ID()).Deleted()
	assert.True(t, ok)
	assert.Equal(t, c.t, deleted)
	assert.Equal(t, int64(2), count(t, b.Lists()))

	again, err := e.TrashLists(ctx, x.ID(), 9999)
	require.NoError(t, err)
	assert.Zero(t, again, "already trashed and unknown ids are skipped")

	c.advance(time.Minute)
	n, err = e.RestoreLists(ctx, x.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	restored := fetchList(t, b, x.ID())
	_, ok = restored.Deleted()
	assert.False(t, ok)
	assert.Equal(t, c.t, restored.Modified())
	live, err := b.Lists().FetchAll(ctx, sqlite.ByOrder())
	require.NoError(t, err)
	for _, l := range live {
		if l.ID() != x.ID() {
			assert.Greater(t, restored.Order(), l.Order())
		}
	}
	assert.Equal(t, a.Order(), fetchList(t, b, a.ID()).Order())
}

func TestEngine_RestoreListsKeepsCallerOrder(t *testing.T) {
	ctx := context.Background()
	e, b, _ := setup(t)
	newList(t, b, "keep")
	first := newList(t, b, "first")
	second := newList(t, b, "second")

	_, err := e.TrashLists(ctx, first.ID(), second.ID())
	require.NoError(t, err)

	_, err = e.RestoreLists(ctx, second.ID(), first.ID())
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetchList(t, b, second.ID()).Order())
	assert.Equal(t, int64(2), fetchList(t, b, first.ID()).Order())
}

func TestEngine_TrashItemsLocked(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		want  int64
	}{
		{name: "without force", force: false, want: 1},
		{name: "with force", force: true, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, b, _ := setup(t)
			l := newList(t, b, "groceries")
			free := newItem(t, b, l.ID(), "bread", false)
			locked := newItem(t, b, l.ID(), "salt", true)

			n, err := e.TrashItems(ctx, l.ID(), tt.force)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			_, ok := fetchItem(t, b, free.ID()).Deleted()
			assert.True(t, ok)
			_, ok = fetchItem(t, b, locked.ID()).Deleted()
			assert.Equal(t, tt.force, ok)
		})
	}
}

func TestEngine_TrashItemsTouchesList(t *testing.T) {
	ctx := context.Background()
	e, b, c := setup(t)
	l := newList(t, b, "a")
	it := newItem(t, b, l.ID(), "x", false)
	other := newList(t, b, "b")
	foreign := newItem(t, b, other.ID(), "y", false)

	n, err := e.TrashItems(ctx, l.ID(), false, it.ID(), foreign.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "items of other lists are skipped")
	assert.Equal(t, c.t, fetchList(t, b, l.ID()).Modified())

	_, ok := fetchItem(t, b, foreign.ID()).Deleted()
	assert.False(t, ok)
}

func TestEngine_RestoreItems(t *testing.T) {
	ctx := context.Background()
	e, b, _ := setup(t)
	l := newList(t, b, "a")
	x := newItem(t, b, l.ID(), "x", false)
	y := newItem(t, b, l.ID(), "y", false)
	z := newItem(t, b, l.ID(), "z", false)

	_, err := e.TrashItems(ctx, l.ID(), false, x.ID(), y.ID())
	require.NoError(t, err)
	n, err := e.RestoreItems(ctx, l.ID(), y.ID(), x.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	zOrder := fetchItem(t, b, z.ID()).Order()
	yItem := fetchItem(t, b, y.ID())
	xItem := fetchItem(t, b, x.ID())
	assert.Equal(t, zOrder+1, yItem.Order())
	assert.Equal(t, zOrder+2, xItem.Order())
	_, ok := xItem.Deleted()
	assert.False(t, ok)

	_, err = e.RestoreItems(ctx, 0)
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestEngine_PurgeByAge(t *testing.T) {
	ctx := context.Background()
	e, b, c := setup(t)
	old := newList(t, b, "old")
	newItem(t, b, old.ID(), "o1", false)
	newItem(t, b, old.ID(), "o2", false)
	recent := newList(t, b, "recent")
	live := newList(t, b, "live")
	stale := newItem(t, b, live.ID(), "stale", false)
	newItem(t, b, live.ID(), "fresh", false)

	_, err := e.TrashLists(ctx, old.ID())
	require.NoError(t, err)
	_, err = e.TrashItems(ctx, live.ID(), false, stale.ID())
	require.NoError(t, err)
	c.advance(90 * time.Minute)
	_, err = e.TrashLists(ctx, recent.ID())
	require.NoError(t, err)
	c.advance(30 * time.Minute)

	p, err := e.PurgeByAge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Purged{Lists: 1, Items: 3}, p)
	assert.Equal(t, int64(1), count(t, b.ListsTrash()))
	assert.Equal(t, int64(1), count(t, b.AllItems()))

	p, err = e.PurgeByAge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Lists)
	assert.Zero(t, count(t, b.ListsTrash()))
	assert.Equal(t, int64(1), count(t, b.Lists()))
}

func TestEngine_PurgeByCount(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		kept  []string
	}{
		{name: "zero purges all", limit: 0, kept: nil},
		{name: "keeps newest", limit: 2, kept: []string{"second", "third"}},
		{name: "above size keeps all", limit: 5, kept: []string{"first", "second", "third"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, b, c := setup(t)
			for _, name := range []string{"first", "second", "third"} {
				l := newList(t, b, name)
				newItem(t, b, l.ID(), name+" item", false)
				_, err := e.TrashLists(ctx, l.ID())
				require.NoError(t, err)
				c.advance(time.Second)
			}

			p, err := e.PurgeByCount(ctx, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, int64(3-len(tt.kept)), p.Lists)
			assert.Equal(t, p.Lists, p.Items)

			left, err := b.ListsTrash().FetchAll(ctx, sqlite.ByOrder())
			require.NoError(t, err)
			var names []string
			for _, l := range left {
				names = append(names, l.Name())
			}
			assert.Equal(t, tt.kept, names)
		})
	}
}

func TestEngine_PurgeByCountLimitsItemTrashPerList(t *testing.T) {
	ctx := context.Background()
	e, b, c := setup(t)
	l := newList(t, b, "a")
	var ids []int64
	for _, text := range []string{"x", "y", "z"} {
		it := newItem(t, b, l.ID(), text, false)
		_, err := e.TrashItems(ctx, l.ID(), false, it.ID())
		require.NoError(t, err)
		ids = append(ids, it.ID())
		c.advance(time.Second)
	}

	p, err := e.PurgeByCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Purged{Items: 2}, p)

	left, err := b.ItemsTrash().IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2]}, left)
}

func TestEngine_ApplyPolicy(t *testing.T) {
	tests := []struct {
		policy types.KeepInTrash
		left   int64
	}{
		{policy: types.KeepUnlimited, left: 5},
		{policy: types.KeepDay, left: 1},
		{policy: types.KeepWeek, left: 3},
		{policy: types.KeepMonth, left: 4},
		{policy: types.KeepLastEntries, left: 3},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			ctx := context.Background()
			e, b, c := setup(t)
			// Trashed 40, 20, 5 and 2 days and 1 hour before the policy runs.
			for _, age := range []time.Duration{40 * 24, 20 * 24, 5 * 24, 2 * 24, 1} {
				l := newList(t, b, "l")
				c.t = time.UnixMilli(1_700_000_000_000).Add(-age * time.Hour)
				_, err := e.TrashLists(ctx, l.ID())
				require.NoError(t, err)
			}
			c.t = time.UnixMilli(1_700_000_000_000)

			_, err := e.ApplyPolicy(ctx, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.left, count(t, b.ListsTrash()))
		})
	}
}

func TestEngine_DeleteLists(t *testing.T) {
	ctx := context.Background()
	e, b, _ := setup(t)
	live := newList(t, b, "live")
	newItem(t, b, live.ID(), "x", false)
	trashed := newList(t, b, "trashed")
	newItem(t, b, trashed.ID(), "y", false)
	keep := newList(t, b, "keep")
	newItem(t, b, keep.ID(), "z", false)
	_, err := e.TrashLists(ctx, trashed.ID())
	require.NoError(t, err)

	p, err := e.DeleteLists(ctx, live.ID(), trashed.ID())
	require.NoError(t, err)
	assert.Equal(t, Purged{Lists: 2, Items: 2}, p)
	assert.Equal(t, int64(1), count(t, b.AllLists()))
	assert.Equal(t, int64(1), count(t, b.AllItems()))
}

func TestEngine_DeleteItems(t *testing.T) {
	ctx := context.Background()
	e, b, c := setup(t)
	l := newList(t, b, "a")
	x := newItem(t, b, l.ID(), "x", true)
	newItem(t, b, l.ID(), "y", false)

	n, err := e.DeleteItems(ctx, l.ID(), x.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), count(t, b.AllItems()))
	assert.Equal(t, c.t, fetchList(t, b, l.ID()).Modified())
}

func TestEngine_EmptyTrash(t *testing.T) {
	ctx := context.Background()
	e, b, _ := setup(t)
	gone := newList(t, b, "gone")
	newItem(t, b, gone.ID(), "with list", false)
	live := newList(t, b, "live")
	trashedItem := newItem(t, b, live.ID(), "trashed", false)
	newItem(t, b, live.ID(), "kept", false)
	_, err := e.TrashLists(ctx, gone.ID())
	require.NoError(t, err)
	_, err = e.TrashItems(ctx, live.ID(), false, trashedItem.ID())
	require.NoError(t, err)

	p, err := e.EmptyTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, Purged{Lists: 1, Items: 2}, p)
	assert.Equal(t, int64(1), count(t, b.AllLists()))
	assert.Equal(t, int64(1), count(t, b.AllItems()))
}

func TestEngine_Detached(t *testing.T) {
	ctx := context.Background()
	e, b, _ := setup(t)
	require.NoError(t, b.Detach())

	_, err := e.TrashLists(ctx, 1)
	assert.ErrorIs(t, err, types.ErrNoConnection)
	_, err = e.PurgeByAge(ctx, 0)
	assert.ErrorIs(t, err, types.ErrNoConnection)
}
