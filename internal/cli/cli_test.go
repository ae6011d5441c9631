package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lists/internal/paths"
	"github.com/mesh-intelligence/lists/pkg/types"
)

type testDirs struct {
	config string
	data   string
}

func newDirs(t *testing.T) testDirs {
	t.Helper()
	t.Setenv("LISTS_LOG_LEVEL", "")
	t.Setenv("LISTS_LOG_FORMAT", "")
	return testDirs{
		config: filepath.Join(t.TempDir(), "config"),
		data:   filepath.Join(t.TempDir(), "data"),
	}
}

// run executes the command line with the test directories and returns
// standard output.
func (d testDirs) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", d.config, "--data-dir", d.data}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (d testDirs) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := d.run(t, args...)
	require.NoError(t, err, "lists %s", strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestVersion(t *testing.T) {
	d := newDirs(t)
	out := d.mustRun(t, "version")
	assert.Contains(t, out, "lists "+Version)
	assert.Contains(t, out, modulePath)
	assert.NoDirExists(t, d.config, "version does not load the config")
}

func TestInit(t *testing.T) {
	d := newDirs(t)
	out := d.mustRun(t, "init")
	assert.Contains(t, out, "Initialized")
	assert.FileExists(t, filepath.Join(d.data, "lists.db"))

	data, err := os.ReadFile(filepath.Join(d.config, paths.ConfigFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "data_dir: "+d.data)
	assert.Contains(t, string(data), "# lists configuration", "comments are kept")

	d.mustRun(t, "init")
}

func TestListCommands(t *testing.T) {
	d := newDirs(t)

	added := decode[listView](t, d.mustRun(t, "--json", "list", "add", "groceries", "--item", "bread", "--item", "milk"))
	assert.Positive(t, added.ID)
	assert.Equal(t, "groceries", added.Name)
	require.Len(t, added.Entries, 2)

	d.mustRun(t, "list", "add", "hardware")

	ls := decode[[]listView](t, d.mustRun(t, "--json", "list", "ls"))
	require.Len(t, ls, 2)
	assert.Equal(t, "groceries", ls[0].Name)
	assert.Equal(t, 2, ls[0].Items)

	shown := decode[listView](t, d.mustRun(t, "--json", "list", "show", "1"))
	assert.Len(t, shown.Entries, 2)

	text := d.mustRun(t, "list", "ls")
	assert.Contains(t, text, "NAME")
	assert.Contains(t, text, "hardware")

	assert.Contains(t, d.mustRun(t, "list", "trash", "1"), "Trashed 1 list(s)")
	trashed := decode[[]listView](t, d.mustRun(t, "--json", "trash", "ls"))
	require.Len(t, trashed, 1)
	assert.NotNil(t, trashed[0].Deleted)

	d.mustRun(t, "trash", "restore")
	ls = decode[[]listView](t, d.mustRun(t, "--json", "list", "ls"))
	require.Len(t, ls, 2)
	assert.Equal(t, "groceries", ls[1].Name, "restored lists go to the end")

	assert.Contains(t, d.mustRun(t, "list", "rm", "1"), "Deleted 1 list(s) and 2 item(s)")

	_, err := d.run(t, "list", "show", "1")
	require.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestItemCommands(t *testing.T) {
	d := newDirs(t)
	d.mustRun(t, "list", "add", "groceries")

	added := decode[[]itemView](t, d.mustRun(t, "--json", "item", "add", "1", "bread", "milk", "--note", "fresh"))
	require.Len(t, added, 2)
	assert.Equal(t, int64(1), added[1].Order)
	assert.Equal(t, "fresh", added[0].Note)

	d.mustRun(t, "item", "set", "1", "--locked")
	assert.Contains(t, d.mustRun(t, "item", "trash", "1"), "Trashed 1 item(s)")

	live := decode[[]itemView](t, d.mustRun(t, "--json", "item", "ls", "1"))
	require.Len(t, live, 1)
	assert.True(t, live[0].Locked)

	trashed := decode[[]itemView](t, d.mustRun(t, "--json", "item", "ls", "1", "--trash"))
	require.Len(t, trashed, 1)
	assert.Equal(t, "milk", trashed[0].Item)

	d.mustRun(t, "trash", "restore", "--list", "1")
	assert.Len(t, decode[[]itemView](t, d.mustRun(t, "--json", "item", "ls", "1")), 2)

	assert.Contains(t, d.mustRun(t, "item", "trash", "1", "--force"), "Trashed 2 item(s)")
	assert.Contains(t, d.mustRun(t, "item", "rm", "1", "1", "2"), "Deleted 2 item(s)")
}

func TestItemAddMissingList(t *testing.T) {
	d := newDirs(t)
	_, err := d.run(t, "--json", "item", "add", "99", "ghost")
	require.ErrorIs(t, err, types.ErrUnresolvableReference)
	assert.Equal(t, exitUserError, exitCode(err))

	d.mustRun(t, "list", "add", "groceries")
	assert.Empty(t, decode[[]itemView](t, d.mustRun(t, "--json", "item", "ls", "1")))
}

func TestTrashPurge(t *testing.T) {
	d := newDirs(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		d.mustRun(t, "list", "add", name, "--item", "x")
	}
	d.mustRun(t, "list", "trash", "1", "2", "3", "4", "5")

	p := decode[map[string]int64](t, d.mustRun(t, "--json", "trash", "purge"))
	assert.Equal(t, int64(2), p["lists"], "keep_in_trash: last keeps three")

	p = decode[map[string]int64](t, d.mustRun(t, "--json", "trash", "purge", "--keep", "1"))
	assert.Equal(t, int64(2), p["lists"])

	p = decode[map[string]int64](t, d.mustRun(t, "--json", "trash", "purge", "--older-than", "1h"))
	assert.Zero(t, p["lists"])

	p = decode[map[string]int64](t, d.mustRun(t, "--json", "trash", "empty"))
	assert.Equal(t, int64(1), p["lists"])
	assert.Equal(t, int64(1), p["items"])

	_, err := d.run(t, "trash", "purge", "--keep", "1", "--older-than", "1h")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestCleanup(t *testing.T) {
	d := newDirs(t)
	rep := decode[map[string]any](t, d.mustRun(t, "--json", "cleanup"))
	assert.Equal(t, "truncated", rep["outcome"])

	d.mustRun(t, "list", "add", "groceries", "--item", "bread")
	assert.Contains(t, d.mustRun(t, "cleanup"), "Cleanup: nothing")
}

func TestMigrate(t *testing.T) {
	d := newDirs(t)
	doc := `{"uuid": "a", "name": "groceries", "order": 0, "created": 1600000000000,
		"items": [{"item": "milk", "order": 0, "created": 1600000000000}]}`
	path := filepath.Join(d.data, types.DefaultLegacyDir, "lists", "a.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	res := decode[map[string]any](t, d.mustRun(t, "--json", "migrate"))
	assert.EqualValues(t, 1, res["lists"])
	assert.EqualValues(t, 1, res["items"])
	assert.NoDirExists(t, filepath.Join(d.data, types.DefaultLegacyDir))

	assert.Contains(t, d.mustRun(t, "migrate", "-q"), "Migrated 0 list(s)")
	assert.Contains(t, d.mustRun(t, "list", "ls"), "groceries")
}

func TestStartupMigratesLegacyStore(t *testing.T) {
	d := newDirs(t)
	doc := `{"uuid": "a", "name": "groceries", "order": 0, "created": 1600000000000,
		"items": [{"item": "milk", "order": 0, "created": 1600000000000}]}`
	path := filepath.Join(d.data, types.DefaultLegacyDir, "lists", "a.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	ls := decode[[]listView](t, d.mustRun(t, "--json", "list", "ls"))
	require.Len(t, ls, 1)
	assert.Equal(t, "groceries", ls[0].Name)
	assert.Equal(t, 1, ls[0].Items)
	assert.NoDirExists(t, filepath.Join(d.data, types.DefaultLegacyDir))

	d.mustRun(t, "list", "add", "hardware")
	ls = decode[[]listView](t, d.mustRun(t, "--json", "list", "ls"))
	require.Len(t, ls, 2)
	assert.Equal(t, "hardware", ls[1].Name)
	assert.NotEqual(t, ls[0].Order, ls[1].Order)

	assert.Contains(t, d.mustRun(t, "migrate"), "Migrated 0 list(s)")
}

func TestExport(t *testing.T) {
	d := newDirs(t)
	d.mustRun(t, "list", "add", "groceries", "--item", "bread")
	path := filepath.Join(t.TempDir(), "lists.jsonl")

	assert.Contains(t, d.mustRun(t, "export", path), "Exported 1 list(s)")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"groceries"`)
	assert.Contains(t, string(data), `"item":"bread"`)
}

func TestMetricsFile(t *testing.T) {
	d := newDirs(t)
	d.mustRun(t, "init")
	metricsFile := filepath.Join(t.TempDir(), "lists.prom")
	require.NoError(t, setConfigValue(filepath.Join(d.config, paths.ConfigFileName), cfgKeyMetricsFile, metricsFile))

	d.mustRun(t, "list", "add", "groceries")
	d.mustRun(t, "list", "trash", "1")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lists_trashed_total{kind="list"} 1`)
}

func TestInvalidConfig(t *testing.T) {
	d := newDirs(t)
	d.mustRun(t, "init")
	require.NoError(t, setConfigValue(filepath.Join(d.config, paths.ConfigFileName), cfgKeyBackend, "paper"))

	_, err := d.run(t, "list", "ls")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = d.run(t, "--log-level", "loud", "list", "ls")
	require.Error(t, err)
}

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, setConfigValue(path, "data_dir", "/a"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data_dir: /a\n", string(data))

	require.NoError(t, os.WriteFile(path, []byte("# top\nbackend: sqlite # inline\ndata_dir: /a\n"), 0o644))
	require.NoError(t, setConfigValue(path, "data_dir", "/b"))
	require.NoError(t, setConfigValue(path, "database", "shopping"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# top")
	assert.Contains(t, string(data), "backend: sqlite # inline")
	assert.Contains(t, string(data), "data_dir: /b")
	assert.Contains(t, string(data), "database: shopping")
	assert.NotContains(t, string(data), "/a")

	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o644))
	assert.Error(t, setConfigValue(path, "data_dir", "/a"))
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []int64
		wantErr bool
	}{
		{name: "empty", args: nil, want: []int64{}},
		{name: "ids", args: []string{"1", "42"}, want: []int64{1, 42}},
		{name: "zero", args: []string{"0"}, wantErr: true},
		{name: "text", args: []string{"milk"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDs(tt.args)
			if tt.wantErr {
				assert.Equal(t, exitUserError, exitCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitSuccess},
		{usagef("bad"), exitUserError},
		{types.ErrInvalidID, exitUserError},
		{types.ErrNoConnection, exitSysError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}
