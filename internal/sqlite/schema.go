package sqlite

// Physical table names.
const (
	TableLists     = "lists"
	TableListitems = "listitems"
)

// Table DDL. Timestamps are Unix milliseconds; a NULL deleted column means
// the row is active.
const (
	createLists = `CREATE TABLE IF NOT EXISTS lists (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    "order" INTEGER NOT NULL,
    created INTEGER NOT NULL,
    modified INTEGER NOT NULL,
    deleted INTEGER,
    sync INTEGER NOT NULL DEFAULT 0,
    reset INTEGER NOT NULL DEFAULT 0,
    reset_interval TEXT,
    reset_hour INTEGER,
    reset_minute INTEGER,
    reset_day INTEGER,
    reset_weekday INTEGER,
    legacy_uuid TEXT
);`

	createListitems = `CREATE TABLE IF NOT EXISTS listitems (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id INTEGER NOT NULL,
    item TEXT NOT NULL,
    note TEXT,
    "order" INTEGER NOT NULL,
    hidden INTEGER NOT NULL DEFAULT 0,
    locked INTEGER NOT NULL DEFAULT 0,
    created INTEGER NOT NULL,
    modified INTEGER NOT NULL,
    deleted INTEGER,
    legacy_uuid TEXT
);`
)

// Index DDL.
const (
	idxListsOrder       = `CREATE INDEX IF NOT EXISTS idx_lists_order ON lists("order");`
	idxListsDeleted     = `CREATE INDEX IF NOT EXISTS idx_lists_deleted ON lists(deleted);`
	idxListsLegacy      = `CREATE INDEX IF NOT EXISTS idx_lists_legacy_uuid ON lists(legacy_uuid);`
	idxListitemsList    = `CREATE INDEX IF NOT EXISTS idx_listitems_list_id ON listitems(list_id);`
	idxListitemsOrder   = `CREATE INDEX IF NOT EXISTS idx_listitems_order ON listitems("order");`
	idxListitemsDeleted = `CREATE INDEX IF NOT EXISTS idx_listitems_deleted ON listitems(deleted);`
	idxListitemsLegacy  = `CREATE INDEX IF NOT EXISTS idx_listitems_legacy_uuid ON listitems(list_id, legacy_uuid);`
)

// SchemaVersion is the version the registered upgrade steps end at.
const SchemaVersion = 2

// listsUpgrades and listitemsUpgrades are registered per table; the manager
// merges statements that share a version.
var listsUpgrades = []UpgradeStatements{
	{Version: 1, Statements: []string{createLists, idxListsOrder, idxListsDeleted}},
	{Version: 2, Statements: []string{idxListsLegacy}},
}

var listitemsUpgrades = []UpgradeStatements{
	{Version: 1, Statements: []string{createListitems, idxListitemsList, idxListitemsOrder, idxListitemsDeleted}},
	{Version: 2, Statements: []string{idxListitemsLegacy}},
}
