// Package cli implements the lists command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/lists/internal/logging"
	"github.com/mesh-intelligence/lists/internal/paths"
	"github.com/mesh-intelligence/lists/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds global flag values and the state loaded before a subcommand runs.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	logLevel  string

	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the top-level "lists" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lists",
		Short: "Keep lists of things in a local SQLite database",
		Long: "lists stores lists and their items in a local SQLite database,\n" +
			"keeps deleted entries in a trash and imports the old file store.",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $"+paths.EnvConfigDir+" or the platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: config data_dir, $"+paths.EnvDataDir+" or the platform data dir)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newItemCmd(a))
	root.AddCommand(newTrashCmd(a))
	root.AddCommand(newCleanupCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newExportCmd(a))
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lists:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps an error to an exit code. Bad input is a user error;
// everything else is a system error.
func exitCode(err error) int {
	var uerr usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &uerr),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrUnresolvableReference):
		return exitUserError
	}
	return exitSysError
}

// usageError marks errors caused by the command line.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// load resolves the config directory, reads config.yaml and builds the
// logger. The version command needs neither.
func (a *app) load(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir

	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.v = v

	level := a.logLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	logger, err := logging.New(level, v.GetString(cfgKeyLogFormat), cmd.ErrOrStderr())
	if err != nil {
		return usagef("%s", err)
	}
	a.logger = logger
	return nil
}
