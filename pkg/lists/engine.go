// Package lists is the public API of the lists persistence engine. An Engine
// owns one SQLite database and runs every operation on it one at a time:
// reading and storing lists and listitems, the trash lifecycle, orphan
// cleanup and the import of the legacy file store.
//
// Example:
//
//	engine, err := lists.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: dataDir,
//	})
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
package lists

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/mesh-intelligence/lists/internal/cleanup"
	"github.com/mesh-intelligence/lists/internal/legacy"
	"github.com/mesh-intelligence/lists/internal/metrics"
	"github.com/mesh-intelligence/lists/internal/snapshot"
	"github.com/mesh-intelligence/lists/internal/sqlite"
	"github.com/mesh-intelligence/lists/internal/trash"
	"github.com/mesh-intelligence/lists/pkg/types"
)

// Result types of the engine operations.
type (
	Purged          = trash.Purged
	CleanupReport   = cleanup.Report
	CleanupOutcome  = cleanup.Outcome
	MigrationResult = legacy.Result
	KeyProvider     = sqlite.KeyProvider
)

// Cleanup outcomes.
const (
	CleanupNothing   = cleanup.OutcomeNothing
	CleanupLive      = cleanup.OutcomeLive
	CleanupTrash     = cleanup.OutcomeTrash
	CleanupBoth      = cleanup.OutcomeBoth
	CleanupTruncated = cleanup.OutcomeTruncated
)

// Progress receives the number of processed legacy files and the total.
type Progress interface {
	Update(current, total int)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(current, total int)

func (f ProgressFunc) Update(current, total int) { f(current, total) }

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	keys       KeyProvider
	encryption bool
	fs         afero.Fs
	now        func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger of the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the engine counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithKeyProvider sets the source of database passphrases.
func WithKeyProvider(k KeyProvider) Option {
	return func(o *options) { o.keys = k }
}

// WithEncryptionSupport declares that the linked SQLite driver can encrypt.
// Without it an encrypted config opens the database unencrypted.
func WithEncryptionSupport(ok bool) Option {
	return func(o *options) { o.encryption = ok }
}

// WithFs sets the filesystem holding the legacy store and exports.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock sets the time source of the trash lifecycle.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Engine is an open lists database.
type Engine struct {
	mu       sync.Mutex
	config   types.Config
	logger   *slog.Logger
	fs       afero.Fs
	manager  *sqlite.Manager
	backend  *sqlite.Backend
	trash    *trash.Engine
	cleanup  *cleanup.Coordinator
	migrator *legacy.Migrator
}

// Open opens, creating and upgrading as needed, the database described by
// config.
func Open(ctx context.Context, config types.Config, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default(), fs: afero.NewOsFs(), now: types.Now}
	for _, opt := range opts {
		opt(&o)
	}
	var m *metrics.Metrics
	if o.registerer != nil {
		m = metrics.New(o.registerer)
	}

	mopts := []sqlite.ManagerOption{
		sqlite.WithManagerLogger(o.logger),
		sqlite.WithCapabilities(sqlite.Capabilities{Encryption: o.encryption}),
	}
	if o.keys != nil {
		mopts = append(mopts, sqlite.WithKeyProvider(o.keys))
	}
	manager := sqlite.NewManager(mopts...)
	backend := sqlite.NewBackend(sqlite.WithLogger(o.logger), sqlite.WithManager(manager))
	if err := backend.Attach(ctx, config); err != nil {
		manager.Close()
		return nil, err
	}

	e := &Engine{
		config:  config,
		logger:  o.logger,
		fs:      o.fs,
		manager: manager,
		backend: backend,
	}
	e.trash = trash.New(backend,
		trash.WithLogger(o.logger),
		trash.WithMetrics(m),
		trash.WithClock(o.now))
	e.cleanup = cleanup.New(backend,
		cleanup.WithLogger(o.logger),
		cleanup.WithMetrics(m),
		cleanup.WithInterval(config.Interval()),
		cleanup.WithLocker(&e.mu))
	e.migrator = legacy.New(o.fs, config.LegacyDir(), backend,
		legacy.WithLogger(o.logger),
		legacy.WithMetrics(m),
		legacy.WithClock(o.now))
	return e, nil
}

// Close closes the database. Operations fail with types.ErrNoConnection
// afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backend.Detach(); err != nil {
		return err
	}
	return e.manager.Close()
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() types.Config { return e.config }

// Path returns the database file, or "" after Close.
func (e *Engine) Path() string {
	conn, err := e.backend.Conn()
	if err != nil {
		return ""
	}
	return conn.Path()
}

// locked runs fn holding the engine lock.
func locked[T any](e *Engine, fn func() (T, error)) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// FetchLists returns the active lists, or the trashed lists when trashed is
// set, in display order. Items are not loaded; ItemCount reports how many
// active items each list has.
func (e *Engine) FetchLists(ctx context.Context, trashed bool) ([]*types.List, error) {
	return locked(e, func() ([]*types.List, error) {
		if trashed {
			return e.backend.ListsTrash().FetchPeek(ctx)
		}
		return e.backend.Lists().FetchPeek(ctx)
	})
}

// FetchList returns the list with id, active or trashed, with its active
// items loaded.
func (e *Engine) FetchList(ctx context.Context, id int64) (*types.List, error) {
	return locked(e, func() (*types.List, error) {
		l, err := e.backend.AllLists().FetchOne(ctx, id, false)
		if err != nil {
			return nil, err
		}
		items, err := e.backend.Items().FetchAll(ctx, sqlite.ItemsOf(id))
		if err != nil {
			return nil, err
		}
		l.SetItems(items)
		return l, nil
	})
}

// StoreList writes list and its loaded items that changed, in one
// transaction, and returns the list id. With force every column is written.
func (e *Engine) StoreList(ctx context.Context, list *types.List, force bool) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.backend.StoreList(ctx, list, force)
	})
}

// NextListOrder returns the display order for a list appended at the end.
func (e *Engine) NextListOrder(ctx context.Context) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.backend.Lists().NextOrder(ctx)
	})
}

// DeleteLists permanently removes lists with their items.
func (e *Engine) DeleteLists(ctx context.Context, ids ...int64) (Purged, error) {
	return locked(e, func() (Purged, error) {
		return e.trash.DeleteLists(ctx, ids...)
	})
}

// FetchItems returns the active items of an active list, or its trashed
// items when trashed is set, in display order.
func (e *Engine) FetchItems(ctx context.Context, listID int64, trashed bool) ([]*types.Listitem, error) {
	return locked(e, func() ([]*types.Listitem, error) {
		if trashed {
			return e.backend.ItemsTrash().FetchAll(ctx, sqlite.ItemsOf(listID))
		}
		return e.backend.Items().FetchVisible(ctx, listID)
	})
}

// FetchItem returns the item with id, active or trashed.
func (e *Engine) FetchItem(ctx context.Context, id int64) (*types.Listitem, error) {
	return locked(e, func() (*types.Listitem, error) {
		return e.backend.AllItems().FetchOne(ctx, id, false)
	})
}

// StoreItem writes item if it changed and returns its id.
func (e *Engine) StoreItem(ctx context.Context, item *types.Listitem, force bool) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.backend.StoreItem(ctx, item, force)
	})
}

// NextItemOrder returns the display order for an item appended to listID.
func (e *Engine) NextItemOrder(ctx context.Context, listID int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.backend.Items().NextOrder(ctx, listID)
	})
}

// DeleteItems permanently removes items of listID.
func (e *Engine) DeleteItems(ctx context.Context, listID int64, ids ...int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.trash.DeleteItems(ctx, listID, ids...)
	})
}

// TrashLists moves lists to the trash.
func (e *Engine) TrashLists(ctx context.Context, ids ...int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.trash.TrashLists(ctx, ids...)
	})
}

// RestoreLists moves lists out of the trash, appending them in the given
// order.
func (e *Engine) RestoreLists(ctx context.Context, ids ...int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.trash.RestoreLists(ctx, ids...)
	})
}

// TrashItems moves items of listID to the trash, all of them when no ids
// are given. Locked items stay unless force is set.
func (e *Engine) TrashItems(ctx context.Context, listID int64, force bool, ids ...int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.trash.TrashItems(ctx, listID, force, ids...)
	})
}

// RestoreItems moves items of listID out of the trash.
func (e *Engine) RestoreItems(ctx context.Context, listID int64, ids ...int64) (int64, error) {
	return locked(e, func() (int64, error) {
		return e.trash.RestoreItems(ctx, listID, ids...)
	})
}

// PurgeByAge permanently removes trash older than retention.
func (e *Engine) PurgeByAge(ctx context.Context, retention time.Duration) (Purged, error) {
	return locked(e, func() (Purged, error) {
		return e.trash.PurgeByAge(ctx, retention)
	})
}

// PurgeByCount keeps the limit most recently trashed lists.
func (e *Engine) PurgeByCount(ctx context.Context, limit int) (Purged, error) {
	return locked(e, func() (Purged, error) {
		return e.trash.PurgeByCount(ctx, limit)
	})
}

// ApplyPolicy purges the trash by the keep-in-trash setting of the config.
func (e *Engine) ApplyPolicy(ctx context.Context) (Purged, error) {
	return locked(e, func() (Purged, error) {
		return e.trash.ApplyPolicy(ctx, e.config.TrashPolicy())
	})
}

// EmptyTrash permanently removes every trashed list and item.
func (e *Engine) EmptyTrash(ctx context.Context) (Purged, error) {
	return locked(e, func() (Purged, error) {
		return e.trash.EmptyTrash(ctx)
	})
}

// RunCleanup removes listitems whose list no longer exists.
func (e *Engine) RunCleanup(ctx context.Context) (CleanupReport, error) {
	return e.cleanup.Run(ctx)
}

// StartCleanup runs the cleanup now and then at the configured interval
// until ctx is done. It blocks.
func (e *Engine) StartCleanup(ctx context.Context) {
	e.cleanup.Start(ctx)
}

// RunLegacyMigrationIfPresent imports and removes the legacy file store if
// there is one. progress may be nil.
func (e *Engine) RunLegacyMigrationIfPresent(ctx context.Context, progress Progress) (MigrationResult, error) {
	return locked(e, func() (MigrationResult, error) {
		var p legacy.Progress
		if progress != nil {
			p = progress
		}
		return e.migrator.Run(ctx, p)
	})
}

// StartupReport collects what Startup did.
type StartupReport struct {
	Migration MigrationResult `json:"migration"`
	Cleanup   CleanupReport   `json:"cleanup"`
	Purged    Purged          `json:"purged"`
}

// Startup brings the store into steady state before regular use: it imports
// a legacy file store if one is present, removes orphaned items and applies
// the keep-in-trash policy. A failed migration is returned; cleanup and
// policy failures are logged and leave the store usable.
func (e *Engine) Startup(ctx context.Context, progress Progress) (StartupReport, error) {
	var rep StartupReport
	res, err := e.RunLegacyMigrationIfPresent(ctx, progress)
	if err != nil {
		return rep, fmt.Errorf("startup migration: %w", err)
	}
	rep.Migration = res

	if rep.Cleanup, err = e.RunCleanup(ctx); err != nil {
		e.logger.Warn("startup cleanup failed", "err", err)
	}
	if rep.Purged, err = e.ApplyPolicy(ctx); err != nil {
		e.logger.Warn("startup trash policy failed", "err", err)
	}
	return rep, nil
}

// Export writes every list, active or trashed, with all its items to path
// as JSON Lines and returns the number of lists written. The file is
// replaced atomically.
func (e *Engine) Export(ctx context.Context, path string) (int, error) {
	return locked(e, func() (int, error) {
		ls, err := e.backend.AllLists().FetchAll(ctx, sqlite.ByOrder())
		if err != nil {
			return 0, err
		}
		for _, l := range ls {
			items, err := e.backend.AllItems().FetchAll(ctx, sqlite.ItemsOf(l.ID()))
			if err != nil {
				return 0, err
			}
			l.SetItems(items)
		}
		lines, err := snapshot.Lines(ls)
		if err != nil {
			return 0, err
		}
		if err := snapshot.WriteFile(e.fs, path, lines); err != nil {
			return 0, fmt.Errorf("export: %w", err)
		}
		e.logger.Info("lists exported", "path", path, "lists", len(ls))
		return len(ls), nil
	})
}
