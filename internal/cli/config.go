package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/lists/internal/paths"
	"github.com/mesh-intelligence/lists/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend         = "backend"
	cfgKeyDataDir         = "data_dir"
	cfgKeyDatabase        = "database"
	cfgKeyEncryption      = "encryption"
	cfgKeyFlushOnWrite    = "flush_on_write"
	cfgKeyLegacyRoot      = "legacy_root"
	cfgKeyKeepInTrash     = "keep_in_trash"
	cfgKeyCleanupInterval = "cleanup_interval"
	cfgKeyLogLevel        = "log_level"
	cfgKeyLogFormat       = "log_format"
	cfgKeyMetricsFile     = "metrics_file"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# lists configuration

backend: sqlite

# Data directory (overridable by --data-dir)
# data_dir:

# Base name of the database file
database: lists

# Ask for an encrypted database; the passphrase lives in the system keyring
encryption: false

# Checkpoint the write-ahead log after every write
flush_on_write: false

# Old file store imported by "lists migrate" (default: <data_dir>/lists)
# legacy_root:

# unlimited, day, week, month or last
keep_in_trash: last

cleanup_interval: 24h

log_level: warn
log_format: text

# Write counters in the Prometheus text format after every command
# metrics_file:
`

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default file on first run. LISTS_LOG_LEVEL and
// LISTS_LOG_FORMAT override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyDatabase, types.DefaultDatabase)
	v.SetDefault(cfgKeyKeepInTrash, types.DefaultKeepInTrash.String())
	v.SetDefault(cfgKeyCleanupInterval, types.DefaultCleanupInterval)
	v.SetDefault(cfgKeyLogFormat, "text")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("LISTS")
	for _, key := range []string{cfgKeyLogLevel, cfgKeyLogFormat} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// ensureDefaultConfigFile creates config.yaml if the file does not exist.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, paths.ConfigFileName)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// storeConfig builds the engine configuration from config.yaml and flags.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	config := types.Config{
		Backend:         a.v.GetString(cfgKeyBackend),
		DataDir:         dataDir,
		Database:        a.v.GetString(cfgKeyDatabase),
		Encryption:      a.v.GetBool(cfgKeyEncryption),
		FlushOnWrite:    a.v.GetBool(cfgKeyFlushOnWrite),
		LegacyRoot:      a.v.GetString(cfgKeyLegacyRoot),
		KeepInTrash:     types.ParseKeepInTrash(a.v.GetString(cfgKeyKeepInTrash)),
		CleanupInterval: a.v.GetDuration(cfgKeyCleanupInterval),
	}
	if err := config.Validate(); err != nil {
		return types.Config{}, usagef("config.yaml: %s", err)
	}
	return config, nil
}
