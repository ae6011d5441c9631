package types

import "time"

// Reset intervals for Reset.Interval.
const (
	ResetDaily   = "daily"
	ResetWeekly  = "weekly"
	ResetMonthly = "monthly"
)

// Reset describes when a list's items are automatically unchecked.
// The zero value means no reset is scheduled.
type Reset struct {
	Active   bool
	Interval string
	Hour     int
	Minute   int
	Day      int
	Weekday  int
}

// listFields holds every persisted List column except id. It is comparable
// so dirtiness is a single struct comparison against the stored snapshot.
type listFields struct {
	name       string
	order      int64
	created    int64
	modified   int64
	deleted    int64
	sync       bool
	reset      Reset
	legacyUUID string
}

// List is a named, ordered collection of listitems.
type List struct {
	id        int64
	cur       listFields
	stored    listFields
	items     []*Listitem
	itemCount int
}

// NewList returns a virtual list. It is assigned an id on its first store.
func NewList(name string, order int64) *List {
	now := Now().UnixMilli()
	return &List{
		id: nextVirtualID(),
		cur: listFields{
			name:     name,
			order:    order,
			created:  now,
			modified: now,
		},
	}
}

// ListFromBackend parses a stored row. It fails with ErrMalformedRecord when
// id, name, order or created is missing.
func ListFromBackend(rec Record) (*List, error) {
	id, ok := rec.Int64("id")
	if !ok || id <= 0 {
		return nil, malformed("list", "id")
	}
	name, ok := rec.String("name")
	if !ok {
		return nil, malformed("list", "name")
	}
	order, ok := rec.Int64("order")
	if !ok {
		return nil, malformed("list", "order")
	}
	created, ok := rec.Int64("created")
	if !ok {
		return nil, malformed("list", "created")
	}

	f := listFields{
		name:    name,
		order:   order,
		created: created,
		sync:    rec.Bool("sync"),
	}
	if f.modified, ok = rec.Int64("modified"); !ok {
		f.modified = created
	}
	f.deleted, _ = rec.Int64("deleted")
	f.legacyUUID, _ = rec.String("legacy_uuid")
	if rec.Bool("reset") || rec.Has("reset_interval") {
		f.reset.Active = rec.Bool("reset")
		f.reset.Interval, _ = rec.String("reset_interval")
		f.reset.Hour = intField(rec, "reset_hour")
		f.reset.Minute = intField(rec, "reset_minute")
		f.reset.Day = intField(rec, "reset_day")
		f.reset.Weekday = intField(rec, "reset_weekday")
	}

	l := &List{id: id, cur: f, stored: f}
	if n, ok := rec.Int64("item_count"); ok {
		l.itemCount = int(n)
	}
	return l, nil
}

func intField(rec Record, key string) int {
	n, _ := rec.Int64(key)
	return int(n)
}

func (l *List) ID() int64       { return l.id }
func (l *List) IsVirtual() bool { return l.id <= 0 }

// Dirty reports whether the list must be written. Item changes are tracked
// on the items themselves.
func (l *List) Dirty() bool {
	return l.IsVirtual() || l.cur != l.stored
}

// Clean takes a snapshot of the current state as the stored state.
func (l *List) Clean() {
	l.stored = l.cur
}

// MarkStored adopts the backend id and cleans the list. Items that still
// carry the list's placeholder id are pointed at the new one.
func (l *List) MarkStored(id int64) {
	if l.id != id {
		for _, it := range l.items {
			if it.cur.listID == l.id {
				it.cur.listID = id
			}
		}
	}
	l.id = id
	l.Clean()
}

func (l *List) Name() string { return l.cur.name }

func (l *List) SetName(name string) {
	if l.cur.name != name {
		l.cur.name = name
		l.touch()
	}
}

func (l *List) Order() int64 { return l.cur.order }

func (l *List) SetOrder(order int64) {
	l.cur.order = order
}

func (l *List) Created() time.Time  { return fromMillis(l.cur.created) }
func (l *List) Modified() time.Time { return fromMillis(l.cur.modified) }

// SetCreated overrides the creation time, used when importing old data.
func (l *List) SetCreated(t time.Time) {
	l.cur.created = toMillis(t)
}

// Touch sets the modified time.
func (l *List) Touch(t time.Time) {
	l.cur.modified = toMillis(t)
}

func (l *List) touch() {
	l.cur.modified = Now().UnixMilli()
}

// Deleted returns the time the list was moved to the trash.
func (l *List) Deleted() (time.Time, bool) {
	return fromMillis(l.cur.deleted), l.cur.deleted != 0
}

// SetDeleted moves the list to the trash at t; the zero time restores it.
func (l *List) SetDeleted(t time.Time) {
	l.cur.deleted = toMillis(t)
}

func (l *List) Sync() bool { return l.cur.sync }

func (l *List) SetSync(sync bool) {
	if l.cur.sync != sync {
		l.cur.sync = sync
		l.touch()
	}
}

func (l *List) Reset() Reset { return l.cur.reset }

func (l *List) SetReset(r Reset) {
	if l.cur.reset != r {
		l.cur.reset = r
		l.touch()
	}
}

func (l *List) LegacyUUID() string { return l.cur.legacyUUID }

func (l *List) SetLegacyUUID(uuid string) {
	l.cur.legacyUUID = uuid
}

// Items returns the loaded items. Lists fetched without items return nil.
func (l *List) Items() []*Listitem { return l.items }

// AddItem appends item and points it at this list.
func (l *List) AddItem(item *Listitem) {
	item.SetListID(l.id)
	l.items = append(l.items, item)
}

// SetItems replaces the loaded items.
func (l *List) SetItems(items []*Listitem) {
	l.items = items
}

// ItemCount returns the number of loaded items, or the stored count when
// the list was fetched without its items.
func (l *List) ItemCount() int {
	if l.items != nil {
		return len(l.items)
	}
	return l.itemCount
}

// ToBackend returns the columns that differ from the stored snapshot, or
// every column when the list is virtual or force is set.
func (l *List) ToBackend(force bool) Record {
	all := force || l.IsVirtual()
	c, s := l.cur, l.stored
	rec := Record{}
	if all || c.name != s.name {
		rec["name"] = c.name
	}
	if all || c.order != s.order {
		rec["order"] = c.order
	}
	if all || c.created != s.created {
		rec["created"] = c.created
	}
	if all || c.modified != s.modified {
		rec["modified"] = c.modified
	}
	if all || c.deleted != s.deleted {
		rec["deleted"] = nullMillis(c.deleted)
	}
	if all || c.sync != s.sync {
		rec["sync"] = boolToInt(c.sync)
	}
	if all || c.reset != s.reset {
		rec["reset"] = boolToInt(c.reset.Active)
		rec["reset_interval"] = nullString(c.reset.Interval)
		rec["reset_hour"] = int64(c.reset.Hour)
		rec["reset_minute"] = int64(c.reset.Minute)
		rec["reset_day"] = int64(c.reset.Day)
		rec["reset_weekday"] = int64(c.reset.Weekday)
	}
	if all || c.legacyUUID != s.legacyUUID {
		rec["legacy_uuid"] = nullString(c.legacyUUID)
	}
	return rec
}
