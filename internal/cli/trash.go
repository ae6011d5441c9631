package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
)

func newTrashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect, restore and purge trashed lists",
	}
	cmd.AddCommand(newTrashLsCmd(a), newTrashRestoreCmd(a), newTrashPurgeCmd(a), newTrashEmptyCmd(a))
	return cmd
}

func newTrashLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Show trashed lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				ls, err := e.FetchLists(ctx, true)
				if err != nil {
					return err
				}
				return a.printLists(cmd.OutOrStdout(), ls)
			})
		},
	}
}

func newTrashRestoreCmd(a *app) *cobra.Command {
	var listID int64
	cmd := &cobra.Command{
		Use:   "restore [ID...]",
		Short: "Restore trashed lists, or items of --list, all of them when no id is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				var n int64
				if listID > 0 {
					n, err = e.RestoreItems(ctx, listID, ids...)
				} else {
					n, err = e.RestoreLists(ctx, ids...)
				}
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), map[string]int64{"restored": n}, "Restored %d", n)
			})
		},
	}
	cmd.Flags().Int64Var(&listID, "list", 0, "restore items of this list instead of lists")
	return cmd
}

func newTrashPurgeCmd(a *app) *cobra.Command {
	var (
		olderThan time.Duration
		keep      int
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old trash permanently, by the keep_in_trash setting unless a flag is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			byAge := cmd.Flags().Changed("older-than")
			byCount := cmd.Flags().Changed("keep")
			if byAge && byCount {
				return usagef("--older-than and --keep are mutually exclusive")
			}
			if olderThan < 0 || keep < 0 {
				return usagef("--older-than and --keep must not be negative")
			}
			return a.withMaintenance(cmd, func(ctx context.Context, e *lists.Engine) error {
				var (
					p   lists.Purged
					err error
				)
				switch {
				case byAge:
					p, err = e.PurgeByAge(ctx, olderThan)
				case byCount:
					p, err = e.PurgeByCount(ctx, keep)
				default:
					p, err = e.ApplyPolicy(ctx)
				}
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), p, "Purged %d list(s) and %d item(s)", p.Lists, p.Items)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "purge trash deleted longer ago than this")
	cmd.Flags().IntVar(&keep, "keep", 0, "keep this many most recently trashed lists")
	return cmd
}

func newTrashEmptyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "empty",
		Short: "Delete every trashed list and item permanently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				p, err := e.EmptyTrash(ctx)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), p, "Purged %d list(s) and %d item(s)", p.Lists, p.Items)
			})
		},
	}
}
