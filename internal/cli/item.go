package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lists/pkg/lists"
	"github.com/mesh-intelligence/lists/pkg/types"
)

func newItemCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage the items of a list",
	}
	cmd.AddCommand(newItemLsCmd(a), newItemAddCmd(a), newItemSetCmd(a), newItemTrashCmd(a), newItemRmCmd(a))
	return cmd
}

func newItemLsCmd(a *app) *cobra.Command {
	var trashed bool
	cmd := &cobra.Command{
		Use:   "ls LIST",
		Short: "Show the items of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				items, err := e.FetchItems(ctx, listID, trashed)
				if err != nil {
					return err
				}
				return a.printItems(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().BoolVar(&trashed, "trash", false, "show trashed items")
	return cmd
}

func newItemAddCmd(a *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "add LIST TEXT...",
		Short: "Append items to a list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				order, err := e.NextItemOrder(ctx, listID)
				if err != nil {
					return err
				}
				added := make([]*itemView, 0, len(args)-1)
				for i, text := range args[1:] {
					it := types.NewListitem(listID, text, order+int64(i))
					it.SetNote(note)
					if _, err := e.StoreItem(ctx, it, false); err != nil {
						return err
					}
					added = append(added, newItemView(it))
				}
				return a.printResult(cmd.OutOrStdout(), added, "Added %d item(s)", len(added))
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note for the new items")
	return cmd
}

func newItemSetCmd(a *app) *cobra.Command {
	var (
		text, note     string
		locked, hidden bool
	)
	cmd := &cobra.Command{
		Use:   "set ID",
		Short: "Change an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				it, err := e.FetchItem(ctx, id)
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("text") {
					it.SetItem(text)
				}
				if flags.Changed("note") {
					it.SetNote(note)
				}
				if flags.Changed("locked") {
					it.SetLocked(locked)
				}
				if flags.Changed("hidden") {
					it.SetHidden(hidden)
				}
				if _, err := e.StoreItem(ctx, it, false); err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), newItemView(it), "Updated item %d", id)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "item text")
	cmd.Flags().StringVar(&note, "note", "", "item note")
	cmd.Flags().BoolVar(&locked, "locked", false, "lock the item against trashing")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "hide the item")
	return cmd
}

func newItemTrashCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "trash LIST [ID...]",
		Short: "Move items to the trash, all unlocked items when no id is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				n, err := e.TrashItems(ctx, listID, force, ids...)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), map[string]int64{"trashed": n}, "Trashed %d item(s)", n)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "trash locked items too")
	return cmd
}

func newItemRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm LIST ID...",
		Short: "Delete items permanently",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *lists.Engine) error {
				n, err := e.DeleteItems(ctx, listID, ids...)
				if err != nil {
					return err
				}
				return a.printResult(cmd.OutOrStdout(), map[string]int64{"deleted": n}, "Deleted %d item(s)", n)
			})
		},
	}
}
