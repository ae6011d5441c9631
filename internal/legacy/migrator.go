// Package legacy imports the file-per-list store of earlier releases into
// the SQLite backend and removes it afterwards.
//
// The legacy tree has three kinds of documents:
//
//	<root>/lists/<uuid>.json        active lists with their items
//	<root>/trash/<uuid>.json        trashed lists with their items
//	<root>/trash/items/<uuid>.json  trashed items of the list <uuid>
//
// Any other file is an anomaly: it is logged and deleted with the tree but
// never imported.
package legacy

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mesh-intelligence/lists/internal/metrics"
	"github.com/mesh-intelligence/lists/internal/sqlite"
	"github.com/mesh-intelligence/lists/pkg/types"
)

// Progress receives the number of processed files and the total.
type Progress interface {
	Update(current, total int)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(current, total int)

func (f ProgressFunc) Update(current, total int) { f(current, total) }

// Result summarizes one migration run.
type Result struct {
	RunID     string `json:"run_id"`
	Files     int    `json:"files"`     // documents found
	Lists     int    `json:"lists"`     // lists written
	Items     int    `json:"items"`     // items written
	Errors    int    `json:"errors"`    // documents, lists or items that could not be imported
	Anomalies int    `json:"anomalies"` // files that are not legacy documents
}

type docKind int

const (
	docList docKind = iota
	docTrashList
	docItemTrash
)

type document struct {
	path string
	kind docKind
}

// Migrator imports one legacy tree.
type Migrator struct {
	fs      afero.Fs
	root    string
	backend *sqlite.Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Migrator.
type Option func(*Migrator)

func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Migrator) { m.metrics = mt }
}

// WithClock sets the time source for records without timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

// New creates a Migrator for the tree at root on fsys.
func New(fsys afero.Fs, root string, b *sqlite.Backend, opts ...Option) *Migrator {
	m := &Migrator{fs: fsys, root: root, backend: b, logger: b.Logger(), now: types.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory of the legacy tree.
func (m *Migrator) Root() string { return m.root }

// Present reports whether a legacy tree exists.
func (m *Migrator) Present() bool {
	ok, err := afero.DirExists(m.fs, m.root)
	return err == nil && ok
}

// Run imports the legacy tree if it exists. Every document is written in its
// own transaction, deleted once processed, and the whole tree is removed at
// the end, whether or not single records failed. Problems with single
// records are counted in the result; only a missing connection or a
// canceled context is returned as an error. A canceled run leaves the
// unprocessed documents in place for the next run.
func (m *Migrator) Run(ctx context.Context, progress Progress) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := m.logger.With("run", res.RunID)

	if !m.Present() {
		log.Debug("no legacy data found", "root", m.root)
		return res, nil
	}
	if _, err := m.backend.Conn(); err != nil {
		return res, err
	}

	started := time.Now()
	docs, anomalies := m.enumerate(log)
	res.Files, res.Anomalies = len(docs), anomalies
	log.Info("found legacy data", "root", m.root, "files", res.Files, "anomalies", anomalies)

	r := &run{m: m, log: log, ids: make(map[idKey]int64), res: &res, now: m.now()}
	report(progress, 0, res.Files)
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			log.Warn("legacy migration interrupted", "processed", i, "files", res.Files)
			return res, err
		}
		r.migrate(ctx, doc)
		if err := m.fs.Remove(doc.path); err != nil {
			log.Warn("could not remove legacy file", "path", doc.path, "err", err)
		}
		report(progress, i+1, res.Files)
	}

	if err := m.fs.RemoveAll(m.root); err != nil {
		log.Error("could not remove legacy data", "root", m.root, "err", err)
	}

	m.metrics.Migrated(metrics.KindList, int64(res.Lists))
	m.metrics.Migrated(metrics.KindItem, int64(res.Items))
	m.metrics.MigrationErrors(int64(res.Errors))
	log.Info("legacy migration finished",
		"files", res.Files,
		"lists", res.Lists,
		"items", res.Items,
		"errors", res.Errors,
		"anomalies", res.Anomalies,
		"duration", time.Since(started))
	return res, nil
}

func report(p Progress, current, total int) {
	if p != nil {
		p.Update(current, total)
	}
}

// enumerate walks the whole tree before anything is written. Lists come
// first, then trashed lists, then item trash, so that item trash can refer
// to lists imported in the same run.
func (m *Migrator) enumerate(log *slog.Logger) ([]document, int) {
	var docs []document
	anomalies := 0
	walk := func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			log.Warn("could not read legacy path", "path", path, "err", err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		kind, ok := m.classify(path)
		if !ok {
			anomalies++
			log.Warn("unexpected file in legacy data", "path", path)
			return nil
		}
		docs = append(docs, document{path: path, kind: kind})
		return nil
	}
	if err := afero.Walk(m.fs, m.root, walk); err != nil {
		log.Error("could not enumerate legacy data", "root", m.root, "err", err)
	}
	slices.SortStableFunc(docs, func(a, b document) int {
		return cmp.Or(cmp.Compare(a.kind, b.kind), strings.Compare(a.path, b.path))
	})
	return docs, anomalies
}

func (m *Migrator) classify(path string) (docKind, bool) {
	if filepath.Ext(path) != ".json" {
		return 0, false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 2 && parts[0] == "lists":
		return docList, true
	case len(parts) == 2 && parts[0] == "trash":
		return docTrashList, true
	case len(parts) == 3 && parts[0] == "trash" && parts[1] == "items":
		return docItemTrash, true
	}
	return 0, false
}

// idKey identifies a legacy record. Item keys are scoped by their new list
// id; list keys have a zero list id.
type idKey struct {
	item   bool
	listID int64
	legacy string
}

// run holds the state of one migration: the mapping from legacy ids to new
// ids and the running counts.
type run struct {
	m   *Migrator
	log *slog.Logger
	ids map[idKey]int64
	res *Result
	now time.Time
}

func (r *run) migrate(ctx context.Context, doc document) {
	data, err := afero.ReadFile(r.m.fs, doc.path)
	if err != nil {
		r.res.Errors++
		r.log.Error("could not read legacy file", "path", doc.path, "err", err)
		return
	}
	stem := strings.TrimSuffix(filepath.Base(doc.path), ".json")

	switch doc.kind {
	case docList, docTrashList:
		var f fileList
		if err := json.Unmarshal(data, &f); err != nil {
			r.malformed(doc.path, err)
			return
		}
		if f.UUID == "" {
			f.UUID = LegacyID(stem)
		}
		r.migrateList(ctx, f, doc.kind == docTrashList)
	case docItemTrash:
		var f fileItemTrash
		if err := json.Unmarshal(data, &f); err != nil {
			r.malformed(doc.path, err)
			return
		}
		if f.UUID == "" {
			f.UUID = LegacyID(stem)
		}
		r.migrateItemTrash(ctx, f)
	}
}

func (r *run) malformed(path string, err error) {
	r.res.Errors++
	r.log.Error("skipping malformed legacy file", "path", path,
		"err", fmt.Errorf("%w: %w", types.ErrMalformedRecord, err))
}

// tx runs fn in a fresh transaction, rolling back one left open by an
// earlier crash first.
func (r *run) tx(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := r.m.backend.Conn()
	if err != nil {
		return err
	}
	if conn.InTransaction() {
		r.log.Error("rolling back stale transaction before legacy import")
		if err := conn.Rollback(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrTransactionFailed, err)
		}
	}
	return conn.Tx(ctx, fn)
}

// migrateList writes a list and its embedded items in one transaction. A
// failed list write discards the whole document; failed items are counted
// and skipped, as is a repeated item id within the document.
func (r *run) migrateList(ctx context.Context, f fileList, trashed bool) {
	var (
		listID  int64
		items   int
		failed  int
		pending = make(map[idKey]int64)
	)
	err := r.tx(ctx, func(ctx context.Context) error {
		l := f.toList(r.now, trashed)
		id, found, err := r.lookupList(ctx, f.UUID)
		if err != nil {
			return err
		}
		if found {
			l.MarkStored(id)
		}
		if listID, err = r.m.backend.AllLists().Store(ctx, l, true); err != nil {
			return err
		}
		pending[idKey{legacy: string(f.UUID)}] = listID

		for i, fi := range f.Items {
			key := fi.key(f.UUID, i)
			if _, dup := pending[idKey{item: true, listID: listID, legacy: key}]; dup {
				failed++
				r.log.Error("skipping duplicate legacy item", "list", f.UUID, "item", key)
				continue
			}
			itemID, err := r.storeItem(ctx, listID, key, fi, false)
			if err != nil {
				failed++
				r.log.Error("could not import legacy item", "list", f.UUID, "item", key, "err", err)
				continue
			}
			pending[idKey{item: true, listID: listID, legacy: key}] = itemID
			items++
		}
		return nil
	})
	if err != nil {
		r.res.Errors += 1 + len(f.Items)
		r.log.Error("could not import legacy list", "list", f.UUID, "name", f.Name, "err", err)
		return
	}

	r.commit(pending)
	r.res.Lists++
	r.res.Items += items
	r.res.Errors += failed
	r.log.Debug("imported legacy list", "list", f.UUID, "id", listID, "items", items, "trashed", trashed)
}

// migrateItemTrash writes the trashed items of one list. Items whose list
// cannot be found are counted as errors.
func (r *run) migrateItemTrash(ctx context.Context, f fileItemTrash) {
	listID, found, err := r.lookupList(ctx, f.UUID)
	if err == nil && !found {
		err = fmt.Errorf("%w: list %s", types.ErrUnresolvableReference, f.UUID)
	}
	if err != nil {
		r.res.Errors += len(f.Items)
		r.log.Error("could not import trashed legacy items", "list", f.UUID, "items", len(f.Items), "err", err)
		return
	}

	var items, failed int
	pending := make(map[idKey]int64)
	err = r.tx(ctx, func(ctx context.Context) error {
		for i, fi := range f.Items {
			key := fi.key(f.UUID, i)
			if _, dup := pending[idKey{item: true, listID: listID, legacy: key}]; dup {
				failed++
				r.log.Error("skipping duplicate trashed legacy item", "list", f.UUID, "item", key)
				continue
			}
			itemID, err := r.storeItem(ctx, listID, key, fi, true)
			if err != nil {
				failed++
				r.log.Error("could not import trashed legacy item", "list", f.UUID, "item", key, "err", err)
				continue
			}
			pending[idKey{item: true, listID: listID, legacy: key}] = itemID
			items++
		}
		return nil
	})
	if err != nil {
		r.res.Errors += len(f.Items)
		r.log.Error("could not import trashed legacy items", "list", f.UUID, "err", err)
		return
	}

	r.commit(pending)
	r.res.Items += items
	r.res.Errors += failed
}

func (r *run) storeItem(ctx context.Context, listID int64, key string, f fileListitem, trashed bool) (int64, error) {
	it := f.toListitem(listID, key, r.now, trashed)
	id, found, err := r.lookupItem(ctx, listID, key)
	if err != nil {
		return 0, err
	}
	if found {
		it.MarkStored(id)
	}
	return r.m.backend.AllItems().Store(ctx, it, true)
}

// commit records mappings of a committed transaction.
func (r *run) commit(pending map[idKey]int64) {
	for k, id := range pending {
		r.ids[k] = id
	}
}

// lookupList resolves a legacy list id, first from this run and then from
// lists imported by earlier runs.
func (r *run) lookupList(ctx context.Context, legacy LegacyID) (int64, bool, error) {
	if id, ok := r.ids[idKey{legacy: string(legacy)}]; ok {
		return id, true, nil
	}
	return r.m.backend.AllLists().FindLegacy(ctx, string(legacy))
}

func (r *run) lookupItem(ctx context.Context, listID int64, key string) (int64, bool, error) {
	if id, ok := r.ids[idKey{item: true, listID: listID, legacy: key}]; ok {
		return id, true, nil
	}
	return r.m.backend.AllItems().FindLegacy(ctx, listID, key)
}
