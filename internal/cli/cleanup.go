package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
)

func newCleanupCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove items whose list no longer exists",
		Long: "Remove active and trashed items whose list no longer exists. With\n" +
			"--watch the cleanup repeats at cleanup_interval until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMaintenance(cmd, func(ctx context.Context, e *lists.Engine) error {
				if watch {
					e.StartCleanup(ctx)
					return nil
				}
				rep, err := e.RunCleanup(ctx)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), rep,
					"Cleanup: %s (%d active, %d trashed removed)", rep.Outcome, rep.Live, rep.Trash)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running at the configured interval")
	return cmd
}
