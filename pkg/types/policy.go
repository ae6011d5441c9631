package types

import (
	"strconv"
	"time"
)

// KeepInTrash is the user-facing trash retention setting. Day, Week and
// Month purge by age; LastEntries keeps a fixed number of trashed lists.
type KeepInTrash int

const (
	KeepUnlimited   KeepInTrash = -1
	KeepDay         KeepInTrash = 1
	KeepWeek        KeepInTrash = 7
	KeepMonth       KeepInTrash = 30
	KeepLastEntries KeepInTrash = 10000
)

// DefaultKeepInTrash is used when no setting is stored.
const DefaultKeepInTrash = KeepLastEntries

// lastEntriesCount is the number of trashed lists LastEntries keeps.
const lastEntriesCount = 3

// Valid reports whether k is one of the defined settings.
func (k KeepInTrash) Valid() bool {
	switch k {
	case KeepUnlimited, KeepDay, KeepWeek, KeepMonth, KeepLastEntries:
		return true
	}
	return false
}

// ParseKeepInTrash accepts the numeric form or one of "unlimited", "day",
// "week", "month", "last". Unknown values map to DefaultKeepInTrash.
func ParseKeepInTrash(s string) KeepInTrash {
	switch s {
	case "unlimited":
		return KeepUnlimited
	case "day":
		return KeepDay
	case "week":
		return KeepWeek
	case "month":
		return KeepMonth
	case "last":
		return KeepLastEntries
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return DefaultKeepInTrash
	}
	if k := KeepInTrash(n); k.Valid() {
		return k
	}
	return DefaultKeepInTrash
}

// StockPeriod returns how long trashed entries are kept, if the setting is
// age based.
func (k KeepInTrash) StockPeriod() (time.Duration, bool) {
	switch k {
	case KeepDay, KeepWeek, KeepMonth:
		return time.Duration(k) * 24 * time.Hour, true
	}
	return 0, false
}

// StockSize returns how many trashed lists are kept, if the setting is
// count based.
func (k KeepInTrash) StockSize() (int, bool) {
	if k == KeepLastEntries {
		return lastEntriesCount, true
	}
	return 0, false
}

func (k KeepInTrash) String() string {
	switch k {
	case KeepUnlimited:
		return "unlimited"
	case KeepDay:
		return "day"
	case KeepWeek:
		return "week"
	case KeepMonth:
		return "month"
	case KeepLastEntries:
		return "last"
	}
	return strconv.Itoa(int(k))
}
