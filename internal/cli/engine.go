package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/internal/credential"
	"github.com/mesh-intelligence/lists/internal/metrics"
	"github.com/mesh-intelligence/lists/internal/paths"
	"github.com/mesh-intelligence/lists/pkg/lists"
)

// withEngine opens the database, brings it to steady state, runs fn and
// closes it again. When metrics_file is set the counters of the run are
// written there afterwards.
func (a *app) withEngine(cmd *cobra.Command, fn func(context.Context, *lists.Engine) error) error {
	return a.openEngine(cmd, true, fn)
}

// withMaintenance is withEngine without the startup pass, for commands that
// run one of its steps themselves and report the result.
func (a *app) withMaintenance(cmd *cobra.Command, fn func(context.Context, *lists.Engine) error) error {
	return a.openEngine(cmd, false, fn)
}

func (a *app) openEngine(cmd *cobra.Command, startup bool, fn func(context.Context, *lists.Engine) error) error {
	ctx := cmd.Context()
	config, err := a.storeConfig()
	if err != nil {
		return err
	}

	opts := []lists.Option{lists.WithLogger(a.logger)}
	metricsFile := a.v.GetString(cfgKeyMetricsFile)
	var reg *prometheus.Registry
	if metricsFile != "" {
		reg = prometheus.NewRegistry()
		opts = append(opts, lists.WithRegisterer(reg))
	}
	if config.Encryption {
		ring, err := credential.Open(paths.CredentialsDir(a.configDir))
		if err != nil {
			return err
		}
		opts = append(opts, lists.WithKeyProvider(credential.NewKeys(ring)))
	}

	e, err := lists.Open(ctx, config, opts...)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if startup {
		_, err = e.Startup(ctx, a.progress(cmd, false))
	}
	if err == nil {
		err = fn(ctx, e)
	}
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	if reg != nil {
		if werr := metrics.WriteFile(metricsFile, reg); err == nil {
			err = werr
		}
	}
	return err
}

// progress reports legacy migration progress on stderr. It is silent in
// JSON mode and when quiet is set.
func (a *app) progress(cmd *cobra.Command, quiet bool) lists.Progress {
	if quiet || a.jsonMode {
		return nil
	}
	return lists.ProgressFunc(func(current, total int) {
		if total == 0 {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\rmigrating %d/%d", current, total)
		if current == total {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	})
}

// parseIDs converts command arguments to entity ids.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, usagef("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseID converts a single argument to an entity id.
func parseID(arg string) (int64, error) {
	ids, err := parseIDs([]string{arg})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}
