package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// UpgradeStatements are the statements that bring a database to Version.
type UpgradeStatements struct {
	Version    int
	Statements []string
}

// KeyProvider supplies the passphrase of an encrypted database.
type KeyProvider interface {
	Passphrase(ctx context.Context, database string) (string, error)
}

// Capabilities describes what the driver supports.
type Capabilities struct {
	Encryption bool
}

// OpenOptions selects the database to open.
type OpenOptions struct {
	Name         string
	Dir          string
	Encrypted    bool
	FlushOnWrite bool
}

func (o OpenOptions) path() string {
	return filepath.Join(o.Dir, o.Name+".db")
}

// Manager owns the open connections and the schema upgrade steps of every
// database it opens.
type Manager struct {
	mu       sync.Mutex
	upgrades map[string]map[int][]string
	conns    map[string]*Conn
	caps     Capabilities
	keys     KeyProvider
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the manager and its connections.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithKeyProvider sets the source of encryption passphrases.
func WithKeyProvider(k KeyProvider) ManagerOption {
	return func(m *Manager) { m.keys = k }
}

// WithCapabilities overrides the driver capabilities. The bundled pure-Go
// driver cannot encrypt.
func WithCapabilities(c Capabilities) ManagerOption {
	return func(m *Manager) { m.caps = c }
}

// NewManager returns a Manager with no registered upgrades.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		upgrades: make(map[string]map[int][]string),
		conns:    make(map[string]*Conn),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddUpgradeStatements registers upgrade steps for database. Statements for
// a version already registered by another table definition are merged after
// the existing ones; a statement registered twice is kept once.
func (m *Manager) AddUpgradeStatements(database string, steps ...UpgradeStatements) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byVersion, ok := m.upgrades[database]
	if !ok {
		byVersion = make(map[int][]string)
		m.upgrades[database] = byVersion
	}
	for _, step := range steps {
		for _, stmt := range step.Statements {
			if !slices.Contains(byVersion[step.Version], stmt) {
				byVersion[step.Version] = append(byVersion[step.Version], stmt)
			}
		}
	}
}

// UpgradePlan returns the merged upgrade steps of database in ascending
// version order.
func (m *Manager) UpgradePlan(database string) []UpgradeStatements {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planLocked(database)
}

func (m *Manager) planLocked(database string) []UpgradeStatements {
	byVersion := m.upgrades[database]
	versions := make([]int, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	slices.Sort(versions)

	plan := make([]UpgradeStatements, 0, len(versions))
	for _, v := range versions {
		plan = append(plan, UpgradeStatements{Version: v, Statements: slices.Clone(byVersion[v])})
	}
	return plan
}

func (m *Manager) targetLocked(database string) int {
	target := 0
	for v := range m.upgrades[database] {
		target = max(target, v)
	}
	return target
}

// Open returns a connection to the database described by opts. A live
// connection to the same file at the current schema version is reused;
// otherwise a fresh connection is opened and pending upgrades are applied.
func (m *Manager) Open(ctx context.Context, opts OpenOptions) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := opts.path()
	target := m.targetLocked(opts.Name)

	if c, ok := m.conns[opts.Name]; ok {
		if m.consistent(ctx, c, path, target) {
			m.logger.Debug("reusing connection", "db", opts.Name)
			return c, nil
		}
		m.logger.Info("discarding stale connection", "db", opts.Name)
		_ = c.Close()
		delete(m.conns, opts.Name)
	}

	encrypted := opts.Encrypted
	if encrypted && !m.caps.Encryption {
		m.logger.Warn("encryption not supported by driver, opening unencrypted", "db", opts.Name)
		encrypted = false
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Name, err)
	}
	// One connection per database: the store has a single logical writer.
	db.SetMaxOpenConns(1)

	if encrypted {
		if err := m.applyKey(ctx, db, opts.Name); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", opts.Name, err)
	}

	c := &Conn{
		name:   opts.Name,
		path:   path,
		db:     db,
		logger: m.logger,
	}
	if opts.FlushOnWrite {
		c.flusher = CheckpointFlusher{}
	}

	if err := m.upgrade(ctx, c); err != nil {
		c.Close()
		return nil, err
	}

	m.conns[opts.Name] = c
	return c, nil
}

// consistent reports whether c can be reused for path at version target.
func (m *Manager) consistent(ctx context.Context, c *Conn, path string, target int) bool {
	if c.path != path || !c.alive(ctx) {
		return false
	}
	v, err := c.userVersion(ctx)
	return err == nil && v == target
}

func (m *Manager) applyKey(ctx context.Context, db *sqlx.DB, name string) error {
	if m.keys == nil {
		return fmt.Errorf("open %s: encryption requested without a key provider", name)
	}
	key, err := m.keys.Passphrase(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: passphrase: %w", name, err)
	}
	_, err = db.ExecContext(ctx, "PRAGMA key = "+quoteLiteral(key))
	return err
}

// upgrade applies every registered step above the database's current
// version, each in its own transaction.
func (m *Manager) upgrade(ctx context.Context, c *Conn) error {
	current, err := c.userVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, step := range m.planLocked(c.name) {
		if step.Version <= current {
			continue
		}
		err := c.Tx(ctx, func(ctx context.Context) error {
			for _, stmt := range step.Statements {
				if _, err := c.Run(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := c.Run(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.Version))
			return err
		})
		if err != nil {
			return fmt.Errorf("upgrade %s to version %d: %w", c.name, step.Version, err)
		}
		m.logger.Info("schema upgraded", "db", c.name, "version", step.Version)
	}
	return nil
}

// Close closes every connection the manager opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, c := range m.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.conns, name)
	}
	return firstErr
}

// release forgets and closes the connection to database.
func (m *Manager) release(database string) error {
	m.mu.Lock()
	c, ok := m.conns[database]
	delete(m.conns, database)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func dsn(path string) string {
	return path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
