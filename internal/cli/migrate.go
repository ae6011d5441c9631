package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
)

func newMigrateCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import the legacy file store into the database",
		Long: "Import lists, trashed lists and trashed items from the legacy file\n" +
			"store, removing each file once imported. Nothing happens when there\n" +
			"is no legacy store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMaintenance(cmd, func(ctx context.Context, e *lists.Engine) error {
				res, err := e.RunLegacyMigrationIfPresent(ctx, a.progress(cmd, quiet))
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), res,
					"Migrated %d list(s) and %d item(s) from %d file(s), %d error(s)",
					res.Lists, res.Items, res.Files, res.Errors)
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report progress")
	return cmd
}
