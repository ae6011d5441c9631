package types

import "time"

type listitemFields struct {
	listID     int64
	item       string
	note       string
	order      int64
	hidden     bool
	locked     bool
	created    int64
	modified   int64
	deleted    int64
	legacyUUID string
}

// Listitem is a single entry of a List. Locked items are skipped by bulk
// trash operations unless forced.
type Listitem struct {
	id     int64
	cur    listitemFields
	stored listitemFields
}

// NewListitem returns a virtual item belonging to listID.
func NewListitem(listID int64, text string, order int64) *Listitem {
	now := Now().UnixMilli()
	return &Listitem{
		id: nextVirtualID(),
		cur: listitemFields{
			listID:   listID,
			item:     text,
			order:    order,
			created:  now,
			modified: now,
		},
	}
}

// ListitemFromBackend parses a stored row. It fails with ErrMalformedRecord
// when id, list_id, item, order or created is missing.
func ListitemFromBackend(rec Record) (*Listitem, error) {
	id, ok := rec.Int64("id")
	if !ok || id <= 0 {
		return nil, malformed("listitem", "id")
	}
	listID, ok := rec.Int64("list_id")
	if !ok {
		return nil, malformed("listitem", "list_id")
	}
	text, ok := rec.String("item")
	if !ok {
		return nil, malformed("listitem", "item")
	}
	order, ok := rec.Int64("order")
	if !ok {
		return nil, malformed("listitem", "order")
	}
	created, ok := rec.Int64("created")
	if !ok {
		return nil, malformed("listitem", "created")
	}

	f := listitemFields{
		listID:  listID,
		item:    text,
		order:   order,
		created: created,
		hidden:  rec.Bool("hidden"),
		locked:  rec.Bool("locked"),
	}
	if f.modified, ok = rec.Int64("modified"); !ok {
		f.modified = created
	}
	f.note, _ = rec.String("note")
	f.deleted, _ = rec.Int64("deleted")
	f.legacyUUID, _ = rec.String("legacy_uuid")

	return &Listitem{id: id, cur: f, stored: f}, nil
}

func (i *Listitem) ID() int64       { return i.id }
func (i *Listitem) IsVirtual() bool { return i.id <= 0 }
func (i *Listitem) Dirty() bool     { return i.IsVirtual() || i.cur != i.stored }
func (i *Listitem) Clean()          { i.stored = i.cur }

// MarkStored adopts the backend id and cleans the item.
func (i *Listitem) MarkStored(id int64) {
	i.id = id
	i.Clean()
}

func (i *Listitem) ListID() int64 { return i.cur.listID }

func (i *Listitem) SetListID(id int64) {
	i.cur.listID = id
}

func (i *Listitem) Item() string { return i.cur.item }

func (i *Listitem) SetItem(text string) {
	if i.cur.item != text {
		i.cur.item = text
		i.touch()
	}
}

func (i *Listitem) Note() string { return i.cur.note }

func (i *Listitem) SetNote(note string) {
	if i.cur.note != note {
		i.cur.note = note
		i.touch()
	}
}

func (i *Listitem) Order() int64 { return i.cur.order }

func (i *Listitem) SetOrder(order int64) {
	i.cur.order = order
}

func (i *Listitem) Hidden() bool { return i.cur.hidden }

func (i *Listitem) SetHidden(hidden bool) {
	if i.cur.hidden != hidden {
		i.cur.hidden = hidden
		i.touch()
	}
}

func (i *Listitem) Locked() bool { return i.cur.locked }

func (i *Listitem) SetLocked(locked bool) {
	if i.cur.locked != locked {
		i.cur.locked = locked
		i.touch()
	}
}

func (i *Listitem) Created() time.Time  { return fromMillis(i.cur.created) }
func (i *Listitem) Modified() time.Time { return fromMillis(i.cur.modified) }

// SetCreated overrides the creation time, used when importing old data.
func (i *Listitem) SetCreated(t time.Time) {
	i.cur.created = toMillis(t)
}

// Touch sets the modified time.
func (i *Listitem) Touch(t time.Time) {
	i.cur.modified = toMillis(t)
}

func (i *Listitem) touch() {
	i.cur.modified = Now().UnixMilli()
}

// Deleted returns the time the item was moved to the trash.
func (i *Listitem) Deleted() (time.Time, bool) {
	return fromMillis(i.cur.deleted), i.cur.deleted != 0
}

// SetDeleted moves the item to the trash at t; the zero time restores it.
func (i *Listitem) SetDeleted(t time.Time) {
	i.cur.deleted = toMillis(t)
}

func (i *Listitem) LegacyUUID() string { return i.cur.legacyUUID }

func (i *Listitem) SetLegacyUUID(uuid string) {
	i.cur.legacyUUID = uuid
}

// ToBackend returns the columns that differ from the stored snapshot, or
// every column when the item is virtual or force is set.
func (i *Listitem) ToBackend(force bool) Record {
	all := force || i.IsVirtual()
	c, s := i.cur, i.stored
	rec := Record{}
	if all || c.listID != s.listID {
		rec["list_id"] = c.listID
	}
	if all || c.item != s.item {
		rec["item"] = c.item
	}
	if all || c.note != s.note {
		rec["note"] = nullString(c.note)
	}
	if all || c.order != s.order {
		rec["order"] = c.order
	}
	if all || c.hidden != s.hidden {
		rec["hidden"] = boolToInt(c.hidden)
	}
	if all || c.locked != s.locked {
		rec["locked"] = boolToInt(c.locked)
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
	if all || c.legacyUUID != s.legacyUUID {
		rec["legacy_uuid"] = nullString(c.legacyUUID)
	}
	return rec
}
