package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// listView is the JSON shape of a list.
type listView struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Order    int64       `json:"order"`
	Items    int         `json:"items"`
	Created  time.Time   `json:"created"`
	Modified time.Time   `json:"modified"`
	Deleted  *time.Time  `json:"deleted,omitempty"`
	Sync     bool        `json:"sync,omitempty"`
	Entries  []*itemView `json:"entries,omitempty"`
}

// itemView is the JSON shape of a listitem.
type itemView struct {
	ID       int64      `json:"id"`
	ListID   int64      `json:"list_id"`
	Item     string     `json:"item"`
	Note     string     `json:"note,omitempty"`
	Order    int64      `json:"order"`
	Hidden   bool       `json:"hidden,omitempty"`
	Locked   bool       `json:"locked,omitempty"`
	Created  time.Time  `json:"created"`
	Modified time.Time  `json:"modified"`
	Deleted  *time.Time `json:"deleted,omitempty"`
}

func deletedAt(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}

func newListView(l *types.List) *listView {
	v := &listView{
		ID:       l.ID(),
		Name:     l.Name(),
		Order:    l.Order(),
		Items:    l.ItemCount(),
		Created:  l.Created(),
		Modified: l.Modified(),
		Deleted:  deletedAt(l.Deleted()),
		Sync:     l.Sync(),
	}
	for _, it := range l.Items() {
		v.Entries = append(v.Entries, newItemView(it))
	}
	return v
}

func newItemView(i *types.Listitem) *itemView {
	return &itemView{
		ID:       i.ID(),
		ListID:   i.ListID(),
		Item:     i.Item(),
		Note:     i.Note(),
		Order:    i.Order(),
		Hidden:   i.Hidden(),
		Locked:   i.Locked(),
		Created:  i.Created(),
		Modified: i.Modified(),
		Deleted:  deletedAt(i.Deleted()),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printLists(w io.Writer, ls []*types.List) error {
	views := make([]*listView, 0, len(ls))
	for _, l := range ls {
		views = append(views, newListView(l))
	}
	if a.jsonMode {
		return writeJSON(w, views)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tITEMS\tMODIFIED")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", v.ID, v.Name, v.Items, v.Modified.Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *app) printItems(w io.Writer, items []*types.Listitem) error {
	views := make([]*itemView, 0, len(items))
	for _, it := range items {
		views = append(views, newItemView(it))
	}
	if a.jsonMode {
		return writeJSON(w, views)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEM\tFLAGS\tNOTE")
	for _, v := range views {
		flags := ""
		if v.Locked {
			flags += "L"
		}
		if v.Hidden {
			flags += "H"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.ID, v.Item, flags, v.Note)
	}
	return tw.Flush()
}

// printResult writes a summary line, or v as JSON.
func (a *app) printResult(w io.Writer, v any, format string, args ...any) error {
	if a.jsonMode {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}
