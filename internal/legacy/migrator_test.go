package legacy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lists/internal/sqlite"
	"github.com/mesh-intelligence/lists/pkg/types"
)

const root = "/data/lists"

var fixedNow = time.UnixMilli(1_700_000_000_000)

func setup(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend(sqlite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	config := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	require.NoError(t, b.Attach(context.Background(), config))
	t.Cleanup(func() { b.Detach() })
	return b
}

func newMigrator(fsys afero.Fs, b *sqlite.Backend) *Migrator {
	return New(fsys, root, b, WithClock(func() time.Time { return fixedNow }))
}

func writeDoc(t *testing.T, fsys afero.Fs, rel string, doc any) {
	t.Helper()
	var data []byte
	switch v := doc.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	path := filepath.Join(root, rel)
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, data, 0o644))
}

func count(t *testing.T, tbl interface {
	Count(context.Context) (int64, error)
}) int64 {
	t.Helper()
	n, err := tbl.Count(context.Background())
	require.NoError(t, err)
	return n
}

type recorder struct{ updates [][2]int }

func (r *recorder) Update(current, total int) {
	r.updates = append(r.updates, [2]int{current, total})
}

func TestLegacyID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    LegacyID
		wantErr bool
	}{
		{in: `"f81d4fae"`, want: "f81d4fae"},
		{in: `42`, want: "42"},
		{in: `1650000000123`, want: "1650000000123"},
		{in: `null`, want: ""},
		{in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id LegacyID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestMigrator_Absent(t *testing.T) {
	b := setup(t)
	rec := &recorder{}

	res, err := newMigrator(afero.NewMemMapFs(), b).Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.Zero(t, res.Lists)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, rec.updates)
	assert.Zero(t, count(t, b.AllLists()))
}

func TestMigrator_Run(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	fsys := afero.NewMemMapFs()

	writeDoc(t, fsys, "lists/a.json", map[string]any{
		"uuid":    "a",
		"name":    "groceries",
		"order":   0,
		"created": 1_600_000_000_000,
		"updated": 1_600_000_100_000,
		"sync":    true,
		"reset":   map[string]any{"active": true, "interval": "weekly", "hour": 6, "weekday": 1},
		"items": []map[string]any{
			{"uuid": 1, "item": "bread", "order": 0, "created": 1_600_000_000_000},
			{"uuid": "x2", "item": "salt", "note": "coarse", "order": 1, "created": 1_600_000_000_000, "locked": true},
		},
	})
	writeDoc(t, fsys, "trash/b.json", map[string]any{
		"uuid": "b", "name": "old", "order": 3, "created": 1_500_000_000_000,
	})
	writeDoc(t, fsys, "trash/items/a.json", map[string]any{
		"uuid": "a",
		"items": []map[string]any{
			{"uuid": "x3", "item": "butter", "order": 2, "created": 1_600_000_000_000, "deleted": 1_650_000_000_000},
		},
	})
	writeDoc(t, fsys, "notes.txt", "not a list")
	writeDoc(t, fsys, "lists/nested/c.json", "{}")

	rec := &recorder{}
	res, err := newMigrator(fsys, b).Run(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 2, res.Lists)
	assert.Equal(t, 3, res.Items)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 2, res.Anomalies)
	assert.Equal(t, [][2]int{{0, 3}, {1, 3}, {2, 3}, {3, 3}}, rec.updates)

	exists, err := afero.DirExists(fsys, root)
	require.NoError(t, err)
	assert.False(t, exists, "legacy tree removed")

	live, err := b.Lists().FetchAll(ctx, sqlite.ByOrder())
	require.NoError(t, err)
	require.Len(t, live, 1)
	groceries := live[0]
	assert.Equal(t, "groceries", groceries.Name())
	assert.Equal(t, "a", groceries.LegacyUUID())
	assert.True(t, groceries.Sync())
	assert.Equal(t, types.Reset{Active: true, Interval: "weekly", Hour: 6, Weekday: 1}, groceries.Reset())
	assert.Equal(t, time.UnixMilli(1_600_000_000_000), groceries.Created())
	assert.Equal(t, time.UnixMilli(1_600_000_100_000), groceries.Modified())

	trashed, err := b.ListsTrash().FetchAll(ctx, sqlite.ByOrder())
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	deleted, ok := trashed[0].Deleted()
	assert.True(t, ok)
	assert.Equal(t, fixedNow, deleted, "trashed list without deleted time gets the run time")

	items, err := b.Items().FetchAll(ctx, sqlite.ItemsOf(groceries.ID()))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "bread", items[0].Item())
	assert.Equal(t, "1", items[0].LegacyUUID())
	assert.Equal(t, "coarse", items[1].Note())
	assert.True(t, items[1].Locked())

	trashedItems, err := b.ItemsTrash().FetchAll(ctx, sqlite.ItemsOf(groceries.ID()))
	require.NoError(t, err)
	require.Len(t, trashedItems, 1)
	deleted, _ = trashedItems[0].Deleted()
	assert.Equal(t, time.UnixMilli(1_650_000_000_000), deleted)
}

// A crash after the database writes but before the tree is deleted is
// simulated with a read-only view of the tree: the first run writes and
// cannot delete, the second run sees the same documents again.
func TestMigrator_RerunDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "lists/a.json", `{"uuid": "a", "name": "", "order": 0, "created": 1600000000000,
		"items": [{"item": "milk", "order": 0, "created": 1600000000000}]}`)

	first, err := newMigrator(afero.NewReadOnlyFs(fsys), b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Lists)
	assert.Equal(t, 1, first.Items)
	firstID, found, err := b.AllLists().FindLegacy(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)

	exists, err := afero.DirExists(fsys, root)
	require.NoError(t, err)
	require.True(t, exists, "read-only run leaves the tree")

	second, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Lists)
	assert.Equal(t, 1, second.Items)
	assert.Zero(t, second.Errors)

	assert.Equal(t, int64(1), count(t, b.AllLists()))
	assert.Equal(t, int64(1), count(t, b.AllItems()))
	secondID, _, err := b.AllLists().FindLegacy(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	third, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, third.Files)
	assert.Zero(t, third.Lists+third.Items+third.Errors)
	assert.Equal(t, int64(1), count(t, b.AllLists()))
}

func TestMigrator_UnresolvedItemTrash(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "trash/items/missing.json", `{"uuid": "missing", "items": [
		{"uuid": "i1", "item": "a", "order": 0, "created": 1},
		{"uuid": "i2", "item": "b", "order": 1, "created": 1}]}`)

	res, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 2, res.Errors)
	assert.Zero(t, res.Items)
	assert.Zero(t, count(t, b.AllItems()))

	exists, err := afero.DirExists(fsys, root)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrator_ItemTrashOfEarlierRun(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	l := types.NewList("imported", 0)
	l.SetLegacyUUID("a")
	listID, err := b.AllLists().Upsert(ctx, l)
	require.NoError(t, err)

	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "trash/items/a.json", `{"items": [{"item": "eggs", "order": 0, "created": 1}]}`)

	res, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Items)

	items, err := b.ItemsTrash().FetchAll(ctx, sqlite.ItemsOf(listID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a#0", items[0].LegacyUUID())
	deleted, ok := items[0].Deleted()
	assert.True(t, ok)
	assert.Equal(t, fixedNow, deleted)
}

func TestMigrator_MalformedDocument(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "lists/bad.json", `{"uuid": "bad", "items": [`)
	writeDoc(t, fsys, "lists/good.json", `{"name": "good", "order": 0, "created": 1}`)

	res, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Lists)
	assert.Equal(t, 1, res.Errors)

	id, found, err := b.AllLists().FindLegacy(ctx, "good")
	require.NoError(t, err)
	assert.True(t, found, "uuid falls back to the file name")
	assert.Positive(t, id)
}

func TestMigrator_Detached(t *testing.T) {
	b := setup(t)
	require.NoError(t, b.Detach())
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "lists/a.json", `{"uuid": "a"}`)

	_, err := newMigrator(fsys, b).Run(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrNoConnection)

	exists, err := afero.Exists(fsys, filepath.Join(root, "lists/a.json"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMigrator_Canceled(t *testing.T) {
	b := setup(t)
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "lists/a.json", `{"uuid": "a"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newMigrator(fsys, b).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Files)
	assert.Zero(t, res.Lists)

	exists, err := afero.DirExists(fsys, root)
	require.NoError(t, err)
	assert.True(t, exists)

	res, err = newMigrator(fsys, b).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Lists, "the next run picks up the unprocessed documents")
	exists, err = afero.DirExists(fsys, root)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrator_DuplicateItemIDs(t *testing.T) {
	ctx := context.Background()
	b := setup(t)
	fsys := afero.NewMemMapFs()
	writeDoc(t, fsys, "lists/a.json", `{"uuid": "a", "name": "groceries", "order": 0, "created": 1, "items": [
		{"uuid": "i1", "item": "milk", "order": 0, "created": 1},
		{"uuid": "i1", "item": "bread", "order": 1, "created": 1}]}`)
	writeDoc(t, fsys, "trash/items/a.json", `{"uuid": "a", "items": [
		{"uuid": "t1", "item": "eggs", "order": 0, "created": 1},
		{"uuid": "t1", "item": "ham", "order": 1, "created": 1}]}`)

	res, err := newMigrator(fsys, b).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, int64(res.Items), count(t, b.AllItems()), "the tally matches the rows written")

	items, err := b.Items().FetchAll(ctx, sqlite.ItemsOf(1))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "milk", items[0].Item(), "the first occurrence wins")
}
