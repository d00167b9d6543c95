package index

import "fmt"

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	path         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	created      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	size         INTEGER NOT NULL DEFAULT 0,
	mtime        DATETIME,
	archived     INTEGER NOT NULL DEFAULT 0,
	UNIQUE(type, filename)
);

CREATE INDEX IF NOT EXISTS idx_notes_type ON notes(type);
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);
CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated);

CREATE TABLE IF NOT EXISTS note_metadata (
	note_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL DEFAULT '',
	value_type TEXT NOT NULL DEFAULT 'string'
		CHECK(value_type IN ('string','number','date','boolean','array')),
	PRIMARY KEY (note_id, key)
);

CREATE INDEX IF NOT EXISTS idx_note_metadata_key ON note_metadata(key);

CREATE TABLE IF NOT EXISTS note_links (
	source_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_id    TEXT,
	target_title TEXT NOT NULL DEFAULT '',
	link_text    TEXT NOT NULL DEFAULT '',
	line_number  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_note_links_source ON note_links(source_id);
CREATE INDEX IF NOT EXISTS idx_note_links_target ON note_links(target_id);

CREATE TABLE IF NOT EXISTS external_links (
	note_id   TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	url       TEXT NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	link_type TEXT NOT NULL DEFAULT 'plain'
);

CREATE INDEX IF NOT EXISTS idx_external_links_note ON external_links(note_id);

CREATE TABLE IF NOT EXISTS note_hierarchy (
	parent_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	child_id  TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL DEFAULT 0,
	UNIQUE(parent_id, child_id)
);

CREATE TABLE IF NOT EXISTS note_id_migration_map (
	old_id   TEXT PRIMARY KEY,
	new_id   TEXT NOT NULL,
	type     TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT ''
);
`

// InitSchema applies the current domain schema. Every statement is
// IF NOT EXISTS, so calling it against an already-initialized database is a
// no-op; migrations also call it to restore dropped triggers after a
// destructive table rewrite.
func (db *DB) InitSchema() error {
	if _, err := db.rw.Exec(coreSchemaSQL); err != nil {
		return fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(db.rw); err != nil {
		return fmt.Errorf("index: apply fts schema: %w", err)
	}
	return nil
}
