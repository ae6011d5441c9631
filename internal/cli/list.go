package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
	"github.com/mesh-intelligence/lists/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage lists",
	}
	cmd.AddCommand(newListLsCmd(a), newListShowCmd(a), newListAddCmd(a), newListTrashCmd(a), newListRmCmd(a))
	return cmd
}

func newListLsCmd(a *app) *cobra.Command {
	var trashed bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "Show lists in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				ls, err := e.FetchLists(ctx, trashed)
				if err != nil {
					return err
				}
				return a.printLists(cmd.OutOrStdout(), ls)
			})
		},
	}
	cmd.Flags().BoolVar(&trashed, "trash", false, "show trashed lists")
	return cmd
}

func newListShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a list with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				l, err := e.FetchList(ctx, id)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), newListView(l))
				}
				if err := a.printResult(cmd.OutOrStdout(), nil, "%s", l.Name()); err != nil {
					return err
				}
				return a.printItems(cmd.OutOrStdout(), l.Items())
			})
		},
	}
}

func newListAddCmd(a *app) *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a list at the end of the display order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				order, err := e.NextListOrder(ctx)
				if err != nil {
					return err
				}
				l := types.NewList(name, order)
				for i, text := range items {
					l.AddItem(types.NewListitem(0, text, int64(i)))
				}
				id, err := e.StoreList(ctx, l, false)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), newListView(l), "Created list %d", id)
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "add an item (repeatable)")
	return cmd
}

func newListTrashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trash ID...",
		Short: "Move lists to the trash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				n, err := e.TrashLists(ctx, ids...)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), map[string]int64{"trashed": n}, "Trashed %d list(s)", n)
			})
		},
	}
}

func newListRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete lists and their items permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				p, err := e.DeleteLists(ctx, ids...)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), p, "Deleted %d list(s) and %d item(s)", p.Lists, p.Items)
			})
		},
	}
}
