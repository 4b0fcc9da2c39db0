package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "importance: per-unit importance records",
		SQL: `
CREATE TABLE importance (
    id                  INTEGER PRIMARY KEY,
    path                TEXT NOT NULL,
    line_start          INTEGER NOT NULL DEFAULT 0,
    line_end            INTEGER NOT NULL DEFAULT 0,

    -- Signals
    access_count        INTEGER NOT NULL DEFAULT 0,
    reference_count     INTEGER NOT NULL DEFAULT 0,
    explicit_importance REAL NOT NULL DEFAULT 0,
    tags                TEXT NOT NULL DEFAULT '[]',
    context_tags        TEXT NOT NULL DEFAULT '[]',

    -- Temporal
    created_at          INTEGER NOT NULL,
    last_written_at     INTEGER,
    last_accessed_at    INTEGER,

    -- Lifecycle
    chamber             TEXT NOT NULL DEFAULT 'tier1' CHECK (chamber IN ('tier1', 'tier2', 'tier3')),
    promoted_at         INTEGER,
    superseded_by       TEXT,

    UNIQUE (path, line_start, line_end)
);

CREATE INDEX idx_importance_path    ON importance(path);
CREATE INDEX idx_importance_chamber ON importance(chamber);
`,
	},
	{
		Version:     2,
		Description: "accesses: append-only access event log",
		SQL: `
CREATE TABLE accesses (
    id          INTEGER PRIMARY KEY,
    path        TEXT NOT NULL,
    line_start  INTEGER NOT NULL DEFAULT 0,
    line_end    INTEGER NOT NULL DEFAULT 0,
    accessed_at INTEGER NOT NULL,
    query       TEXT,
    score       REAL NOT NULL DEFAULT 0
);

CREATE INDEX idx_accesses_path     ON accesses(path);
CREATE INDEX idx_accesses_accessed ON accesses(accessed_at DESC);
`,
	},
	{
		Version:     3,
		Description: "mirror_links: cross-granularity event links",
		SQL: `
CREATE TABLE mirror_links (
    id          INTEGER PRIMARY KEY,
    event_key   TEXT NOT NULL,
    granularity TEXT NOT NULL CHECK (granularity IN ('raw', 'summary', 'lesson')),
    path        TEXT NOT NULL,
    line_start  INTEGER NOT NULL DEFAULT 0,
    line_end    INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,

    UNIQUE (event_key, granularity)
);

CREATE INDEX idx_mirrors_event ON mirror_links(event_key);
CREATE INDEX idx_mirrors_path  ON mirror_links(path);
`,
	},
	{
		Version:     4,
		Description: "meta: key/value bookkeeping (decay checkpoints)",
		SQL: `
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "importance: source_chunk back-reference for derived records",
		SQL: `
ALTER TABLE importance ADD COLUMN source_chunk TEXT NOT NULL DEFAULT '';
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
