package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write every list and item, trash included, to a JSON Lines file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				n, err := e.Export(ctx, path)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), map[string]any{"lists": n, "path": path},
					"Exported %d list(s) to %s", n, path)
			})
		},
	}
}
