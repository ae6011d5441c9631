package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// LegacyID is the identifier of a record in the file store. Older files
// wrote it as a number, newer ones as a string; both decode to the same
// string form.
type LegacyID string

func (id *LegacyID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LegacyID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("legacy id %s: %w", data, err)
	}
	*id = LegacyID(n.String())
	return nil
}

// fileReset is the reset schedule of a legacy list.
type fileReset struct {
	Active   bool   `json:"active"`
	Interval string `json:"interval"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Day      int    `json:"day"`
	Weekday  int    `json:"weekday"`
}

// fileList is one lists/<uuid>.json or trash/<uuid>.json document.
// Timestamps are Unix milliseconds.
type fileList struct {
	UUID    LegacyID       `json:"uuid"`
	Name    string         `json:"name"`
	Created int64          `json:"created"`
	Order   int64          `json:"order"`
	Updated int64          `json:"updated,omitempty"`
	Deleted int64          `json:"deleted,omitempty"`
	Reset   *fileReset     `json:"reset,omitempty"`
	Sync    bool           `json:"sync,omitempty"`
	Items   []fileListitem `json:"items,omitempty"`
}

// fileListitem is a listitem embedded in a list document or an item-trash
// document.
type fileListitem struct {
	UUID    LegacyID `json:"uuid"`
	Item    string   `json:"item"`
	Note    string   `json:"note,omitempty"`
	Order   int64    `json:"order"`
	Created int64    `json:"created"`
	Hidden  bool     `json:"hidden,omitempty"`
	Locked  bool     `json:"locked,omitempty"`
	Updated int64    `json:"updated,omitempty"`
	Deleted int64    `json:"deleted,omitempty"`
}

// fileItemTrash is one trash/items/<list-uuid>.json document.
type fileItemTrash struct {
	UUID  LegacyID       `json:"uuid"`
	Items []fileListitem `json:"items"`
}

func millis(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}

// toList converts the document into a virtual list. A missing creation time
// becomes now; trashed marks documents from the trash subtree, which get a
// deleted time even when the file has none.
func (f fileList) toList(now time.Time, trashed bool) *types.List {
	l := types.NewList(f.Name, f.Order)
	if f.Sync {
		l.SetSync(true)
	}
	if f.Reset != nil {
		l.SetReset(types.Reset{
			Active:   f.Reset.Active,
			Interval: f.Reset.Interval,
			Hour:     f.Reset.Hour,
			Minute:   f.Reset.Minute,
			Day:      f.Reset.Day,
			Weekday:  f.Reset.Weekday,
		})
	}
	created := millis(f.Created, now)
	l.SetCreated(created)
	l.Touch(millis(f.Updated, created))
	switch {
	case f.Deleted > 0:
		l.SetDeleted(time.UnixMilli(f.Deleted))
	case trashed:
		l.SetDeleted(now)
	}
	l.SetLegacyUUID(string(f.UUID))
	return l
}

// key returns the legacy uuid of the item, or a key derived from the list
// uuid and the item's position when the file has none.
func (f fileListitem) key(listUUID LegacyID, index int) string {
	if f.UUID != "" {
		return string(f.UUID)
	}
	return string(listUUID) + "#" + strconv.Itoa(index)
}

func (f fileListitem) toListitem(listID int64, key string, now time.Time, trashed bool) *types.Listitem {
	it := types.NewListitem(listID, f.Item, f.Order)
	it.SetNote(f.Note)
	it.SetHidden(f.Hidden)
	it.SetLocked(f.Locked)
	created := millis(f.Created, now)
	it.SetCreated(created)
	it.Touch(millis(f.Updated, created))
	switch {
	case f.Deleted > 0:
		it.SetDeleted(time.UnixMilli(f.Deleted))
	case trashed:
		it.SetDeleted(now)
	}
	it.SetLegacyUUID(key)
	return it
}
