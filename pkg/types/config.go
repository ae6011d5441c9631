package types

import (
	"errors"
	"path/filepath"
	"time"
)

// Config holds backend selection and parameters for opening a store.
type Config struct {
	Backend  string `json:"backend" yaml:"backend"`
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	Database string `json:"database" yaml:"database"`

	// Encryption requests an encrypted store. It is silently downgraded
	// when the driver cannot encrypt.
	Encryption bool `json:"encryption" yaml:"encryption"`

	// FlushOnWrite checkpoints the write-ahead log after every committed
	// write batch, for platforms that may kill the process without notice.
	FlushOnWrite bool `json:"flush_on_write" yaml:"flush_on_write"`

	// LegacyRoot is the directory of the old file-based store. Empty means
	// DefaultLegacyDir inside DataDir.
	LegacyRoot string `json:"legacy_root" yaml:"legacy_root"`

	KeepInTrash     KeepInTrash   `json:"keep_in_trash" yaml:"keep_in_trash"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Defaults applied by Config accessors.
const (
	DefaultDatabase        = "lists"
	DefaultLegacyDir       = "lists"
	DefaultCleanupInterval = 24 * time.Hour
)

// Config validation errors.
var (
	ErrBackendEmpty           = errors.New("backend must not be empty")
	ErrBackendUnknown         = errors.New("unknown backend")
	ErrCleanupIntervalInvalid = errors.New("cleanup interval must not be negative")
	ErrKeepInTrashUnknown     = errors.New("unknown keep-in-trash setting")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.CleanupInterval < 0 {
		return ErrCleanupIntervalInvalid
	}
	if c.KeepInTrash != 0 && !c.KeepInTrash.Valid() {
		return ErrKeepInTrashUnknown
	}
	return nil
}

// DatabaseName returns the logical database name, which is also the base
// name of the database file.
func (c Config) DatabaseName() string {
	if c.Database == "" {
		return DefaultDatabase
	}
	return c.Database
}

// LegacyDir returns the root of the legacy file store.
func (c Config) LegacyDir() string {
	if c.LegacyRoot != "" {
		return c.LegacyRoot
	}
	return filepath.Join(c.DataDir, DefaultLegacyDir)
}

// Interval returns the cleanup interval, defaulting to one day.
func (c Config) Interval() time.Duration {
	if c.CleanupInterval == 0 {
		return DefaultCleanupInterval
	}
	return c.CleanupInterval
}

// TrashPolicy returns the keep-in-trash setting, defaulting to
// DefaultKeepInTrash.
func (c Config) TrashPolicy() KeepInTrash {
	if c.KeepInTrash == 0 {
		return DefaultKeepInTrash
	}
	return c.KeepInTrash
}
