// Package snapshot writes lists as JSON Lines, one list per line with its
// items embedded, using the column names of the database.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// Lines encodes each list, active or trashed, with its loaded items.
func Lines(ls []*types.List) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(ls))
	for _, l := range ls {
		rec := l.ToBackend(true)
		rec["id"] = l.ID()
		items := make([]types.Record, 0, len(l.Items()))
		for _, it := range l.Items() {
			irec := it.ToBackend(true)
			irec["id"] = it.ID()
			items = append(items, irec)
		}
		rec["items"] = items
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding list %d: %w", l.ID(), err)
		}
		out = append(out, line)
	}
	return out, nil
}

// WriteFile atomically writes records to a JSON Lines file using the
// temp-file, fsync, rename pattern.
func WriteFile(fs afero.Fs, path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) error {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
