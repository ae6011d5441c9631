// Package sqlite implements the SQLite storage backend of the lists engine:
// the connection and schema manager, the scoped table gateways for lists and
// listitems, and transactional list storage.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// Backend owns the connection to one lists database and the gateways over
// it. Each soft-deleting table is exposed twice: once scoped to active rows
// and once scoped to trashed rows.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	manager  *Manager
	ownsMgr  bool
	conn     *Conn
	logger   *slog.Logger

	lists      *ListsTable
	listsTrash *ListsTable
	listsAll   *ListsTable
	items      *ListitemsTable
	itemsTrash *ListitemsTable
	itemsAll   *ListitemsTable
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithManager shares a connection manager between backends. Without it the
// backend creates and owns one.
func WithManager(m *Manager) Option {
	return func(b *Backend) { b.manager = m }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if b.manager == nil {
		b.manager = NewManager(WithManagerLogger(b.logger))
		b.ownsMgr = true
	}
	return b
}

// Attach opens the database described by config, upgrading its schema, and
// creates the table gateways.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(ctx context.Context, config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	name := config.DatabaseName()

	b.manager.AddUpgradeStatements(name, listsUpgrades...)
	b.manager.AddUpgradeStatements(name, listitemsUpgrades...)

	conn, err := b.manager.Open(ctx, OpenOptions{
		Name:         name,
		Dir:          dataDir,
		Encrypted:    config.Encryption,
		FlushOnWrite: config.FlushOnWrite,
	})
	if err != nil {
		return fmt.Errorf("attach %s: %w", name, err)
	}

	b.conn = conn
	b.config = config
	b.lists = newListsTable(conn, ScopeLive, b.logger)
	b.listsTrash = newListsTable(conn, ScopeTrash, b.logger)
	b.listsAll = newListsTable(conn, ScopeAll, b.logger)
	b.items = newListitemsTable(conn, ScopeLive, b.logger)
	b.itemsTrash = newListitemsTable(conn, ScopeTrash, b.logger)
	b.itemsAll = newListitemsTable(conn, ScopeAll, b.logger)
	b.attached = true
	return nil
}

// Detach closes the connection. Gateways obtained earlier fail with
// ErrNoConnection afterwards. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false

	var err error
	if b.ownsMgr {
		err = b.manager.Close()
	} else {
		err = b.manager.release(b.conn.Name())
	}
	return err
}

// Attached reports whether the backend is attached.
func (b *Backend) Attached() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attached
}

// Conn returns the connection, or ErrNoConnection when detached.
func (b *Backend) Conn() (*Conn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrNoConnection
	}
	return b.conn, nil
}

// Config returns the configuration the backend was attached with.
func (b *Backend) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Logger returns the backend logger.
func (b *Backend) Logger() *slog.Logger { return b.logger }

// Gateways are nil before the first Attach.

// Lists returns the gateway of active lists.
func (b *Backend) Lists() *ListsTable {
	return tableOf(b, func() *ListsTable { return b.lists })
}

// ListsTrash returns the gateway of trashed lists.
func (b *Backend) ListsTrash() *ListsTable {
	return tableOf(b, func() *ListsTable { return b.listsTrash })
}

// AllLists returns the unscoped lists gateway.
func (b *Backend) AllLists() *ListsTable {
	return tableOf(b, func() *ListsTable { return b.listsAll })
}

// Items returns the gateway of active items.
func (b *Backend) Items() *ListitemsTable {
	return tableOf(b, func() *ListitemsTable { return b.items })
}

// ItemsTrash returns the gateway of trashed items.
func (b *Backend) ItemsTrash() *ListitemsTable {
	return tableOf(b, func() *ListitemsTable { return b.itemsTrash })
}

// AllItems returns the unscoped items gateway.
func (b *Backend) AllItems() *ListitemsTable {
	return tableOf(b, func() *ListitemsTable { return b.itemsAll })
}

func tableOf[T any](b *Backend, get func() T) T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return get()
}
