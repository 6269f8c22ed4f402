package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create key pair",
		SQL: `
			CREATE TABLE key_pair (
				id             INTEGER PRIMARY KEY CHECK (id = 1),
				private_pem    TEXT NOT NULL,
				public_pem     TEXT NOT NULL,
				fingerprint    TEXT NOT NULL DEFAULT '',
				created_at     TEXT NOT NULL DEFAULT (datetime('now')),
				registered_at  TEXT
			);
		`,
	},
	{
		Version: 2,
		Name:    "create settings",
		SQL: `
			CREATE TABLE settings (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "create booking ledger",
		SQL: `
			CREATE TABLE bookings (
				event_id    TEXT PRIMARY KEY,
				service_id  TEXT NOT NULL,
				slot_start  TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_bookings_slot ON bookings (slot_start);
		`,
	},
}
