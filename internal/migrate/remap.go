package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/frontmatter"
	"github.com/starford/othala/internal/models"
)

// notesDDL is the notes schema as of the identity migration. Migration code
// carries its own DDL so later schema changes cannot retroactively alter
// what this version produces.
const notesDDL = `
CREATE TABLE notes (
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
)`

var dependentDDL = map[string]string{
	"note_metadata": `CREATE TABLE note_metadata (
		note_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL DEFAULT '',
		value_type TEXT NOT NULL DEFAULT 'string'
			CHECK(value_type IN ('string','number','date','boolean','array')),
		PRIMARY KEY (note_id, key)
	)`,
	"note_links": `CREATE TABLE note_links (
		source_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		target_id    TEXT,
		target_title TEXT NOT NULL DEFAULT '',
		link_text    TEXT NOT NULL DEFAULT '',
		line_number  INTEGER NOT NULL DEFAULT 0
	)`,
	"external_links": `CREATE TABLE external_links (
		note_id   TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		url       TEXT NOT NULL,
		title     TEXT NOT NULL DEFAULT '',
		link_type TEXT NOT NULL DEFAULT 'plain'
	)`,
	"note_hierarchy": `CREATE TABLE note_hierarchy (
		parent_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		child_id  TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		position  INTEGER NOT NULL DEFAULT 0,
		UNIQUE(parent_id, child_id)
	)`,
}

// dependentTables lists children of notes in drop-before-parent order.
var dependentTables = []string{"note_metadata", "note_links", "external_links", "note_hierarchy"}

// migrateIdentityRemap converts every note's identity from the old mutable,
// path-derived value to a short random opaque token, keeping the database
// and on-disk front-matter mutually consistent.
//
// The database transform runs inside one transaction; the per-file
// front-matter writes do not (and cannot) share that transaction. A crash
// between the two leaves the stores briefly inconsistent, which is
// compensated for rather than prevented: the file pass runs on every
// invocation and only rewrites files whose front-matter is out of date, so a
// re-run converges.
func (m *Manager) migrateIdentityRemap() error {
	db := m.db.Writer()

	legacy, err := countLegacyIDs(db)
	if err != nil {
		return err
	}
	resume, err := needsRemapResume(db)
	if err != nil {
		return err
	}
	if legacy > 0 || resume {
		if err := m.remapTables(); err != nil {
			return err
		}
		m.relinkIDs = nil // whole-graph re-extraction
	}

	// Dropping notes also drops its indexes and FTS triggers, and an earlier
	// run may have committed the remap and then died before restoring them.
	// Both steps are idempotent, so they run on every invocation.
	if err := m.db.InitSchema(); err != nil {
		return err
	}
	if err := m.db.RebuildFTS(); err != nil {
		return err
	}

	// Always finish with the file pass: an earlier run may have transformed
	// the tables and then been interrupted mid-write.
	return m.remapFrontmatterPass()
}

// needsRemapResume detects a half-finished earlier attempt that left the
// primary tables behind the backup: notes_backup still holds rows while
// notes is empty, or a dependent table is missing entirely. In either state
// the legacy-id count is useless as a trigger (there are no rows to count),
// so the transform must be re-driven from the backup.
func needsRemapResume(db *sql.DB) (bool, error) {
	backup, err := tableExists(db, "notes_backup")
	if err != nil || !backup {
		return false, err
	}
	var backupRows int
	if err := db.QueryRow(`SELECT count(*) FROM notes_backup`).Scan(&backupRows); err != nil {
		return false, fmt.Errorf("migrate: count notes_backup: %w", err)
	}
	if backupRows == 0 {
		return false, nil
	}
	var liveRows int
	if err := db.QueryRow(`SELECT count(*) FROM notes`).Scan(&liveRows); err != nil {
		return false, fmt.Errorf("migrate: count notes: %w", err)
	}
	if liveRows == 0 {
		return true, nil
	}
	for _, table := range dependentTables {
		exists, err := tableExists(db, table)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, nil
		}
	}
	return false, nil
}

func countLegacyIDs(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(`SELECT count(*) FROM notes WHERE id NOT LIKE 'n-%'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("migrate: count legacy ids: %w", err)
	}
	return n, nil
}

func (m *Manager) remapTables() error {
	db := m.db.Writer()

	// Phase 1: snapshot. A backup left by an interrupted attempt is reused.
	for _, table := range append([]string{"notes"}, dependentTables...) {
		if exists, err := tableExists(db, table); err != nil {
			return err
		} else if !exists {
			continue
		}
		if _, reused, err := snapshotTable(db, table); err != nil {
			return err
		} else if reused {
			m.logger.Info("migration: reusing backup from earlier attempt",
				slog.String("table", table+"_backup"))
		}
	}

	// Phase 2: identity map. Mappings recorded by an earlier attempt are
	// kept, so a resumed run hands out the same new ids. The map table is
	// retained after migration as an audit trail.
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS note_id_migration_map (
		old_id   TEXT PRIMARY KEY,
		new_id   TEXT NOT NULL,
		type     TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("migrate: ensure id map: %w", err)
	}

	existing := make(map[string]string)
	rows, err := db.Query(`SELECT old_id, new_id FROM note_id_migration_map`)
	if err != nil {
		return fmt.Errorf("migrate: read id map: %w", err)
	}
	for rows.Next() {
		var oldID, newID string
		if err := rows.Scan(&oldID, &newID); err != nil {
			rows.Close()
			return err
		}
		existing[oldID] = newID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type mapping struct{ oldID, newID, noteType, filename string }
	var newMappings []mapping
	rows, err = db.Query(`SELECT id, type, filename FROM notes_backup`)
	if err != nil {
		return fmt.Errorf("migrate: read backup ids: %w", err)
	}
	for rows.Next() {
		var oldID, noteType, filename string
		if err := rows.Scan(&oldID, &noteType, &filename); err != nil {
			rows.Close()
			return err
		}
		if _, ok := existing[oldID]; ok {
			continue
		}
		newMappings = append(newMappings, mapping{oldID, models.NewNoteID(), noteType, filename})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, mp := range newMappings {
		_, err := db.Exec(`INSERT OR IGNORE INTO note_id_migration_map (old_id, new_id, type, filename)
			VALUES (?, ?, ?, ?)`, mp.oldID, mp.newID, mp.noteType, mp.filename)
		if err != nil {
			return fmt.Errorf("migrate: record mapping: %w", err)
		}
	}

	// Phase 3: drop, recreate, repopulate, inside one transaction.
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin remap tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range dependentTables {
		if _, err := tx.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return fmt.Errorf("migrate: drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DROP TABLE IF EXISTS notes`); err != nil {
		return fmt.Errorf("migrate: drop notes: %w", err)
	}
	if _, err := tx.Exec(notesDDL); err != nil {
		return fmt.Errorf("migrate: recreate notes: %w", err)
	}
	for _, table := range dependentTables {
		if _, err := tx.Exec(dependentDDL[table]); err != nil {
			return fmt.Errorf("migrate: recreate %s: %w", table, err)
		}
	}

	// Repopulate notes, deduplicating (type, filename) collisions that the
	// old schema tolerated: the row with the latest updated wins, rowid
	// breaking exact ties deterministically.
	_, err = tx.Exec(`
		INSERT INTO notes (id, type, filename, path, title, content, content_hash, created, updated, size, mtime, archived)
		SELECT map.new_id, b.type, b.filename, b.path, b.title, b.content, b.content_hash, b.created, b.updated, b.size, b.mtime, b.archived
		FROM notes_backup b
		JOIN note_id_migration_map map ON map.old_id = b.id
		WHERE b.rowid = (
			SELECT b2.rowid FROM notes_backup b2
			WHERE b2.type = b.type AND b2.filename = b.filename
			ORDER BY b2.updated DESC, b2.rowid DESC
			LIMIT 1
		)`)
	if err != nil {
		return fmt.Errorf("migrate: repopulate notes: %w", err)
	}

	// Dependents join through the map; rows whose old identifier matched no
	// surviving note are dropped.
	repopulate := []struct{ name, stmt string }{
		{"note_metadata", `
			INSERT INTO note_metadata (note_id, key, value, value_type)
			SELECT map.new_id, b.key, b.value, b.value_type
			FROM note_metadata_backup b
			JOIN note_id_migration_map map ON map.old_id = b.note_id
			JOIN notes n ON n.id = map.new_id`},
		{"note_links", `
			INSERT INTO note_links (source_id, target_id, target_title, link_text, line_number)
			SELECT srcmap.new_id, tgtmap.new_id, b.target_title, b.link_text, b.line_number
			FROM note_links_backup b
			JOIN note_id_migration_map srcmap ON srcmap.old_id = b.source_id
			JOIN notes n ON n.id = srcmap.new_id
			LEFT JOIN note_id_migration_map tgtmap ON tgtmap.old_id = b.target_id`},
		{"external_links", `
			INSERT INTO external_links (note_id, url, title, link_type)
			SELECT map.new_id, b.url, b.title, b.link_type
			FROM external_links_backup b
			JOIN note_id_migration_map map ON map.old_id = b.note_id
			JOIN notes n ON n.id = map.new_id`},
		{"note_hierarchy", `
			INSERT OR IGNORE INTO note_hierarchy (parent_id, child_id, position)
			SELECT pmap.new_id, cmap.new_id, b.position
			FROM note_hierarchy_backup b
			JOIN note_id_migration_map pmap ON pmap.old_id = b.parent_id
			JOIN note_id_migration_map cmap ON cmap.old_id = b.child_id
			JOIN notes pn ON pn.id = pmap.new_id
			JOIN notes cn ON cn.id = cmap.new_id`},
	}
	for _, r := range repopulate {
		if exists, err := backupExistsTx(tx, r.name+"_backup"); err != nil {
			return err
		} else if !exists {
			continue
		}
		if _, err := tx.Exec(r.stmt); err != nil {
			return fmt.Errorf("migrate: repopulate %s: %w", r.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit remap: %w", err)
	}

	return verifySurvival(db, "notes_backup", "notes")
}

func backupExistsTx(tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("migrate: check table %s: %w", name, err)
	}
	return n > 0, nil
}

// remapFrontmatterPass merges id and the preserved created timestamp into
// every note file's front-matter. The merge is structural, so unrelated
// fields survive untouched. A file missing on disk is not a hard failure:
// the row is flagged for a later rescan (empty content_hash) and processing
// continues. Any other I/O error is fatal and aborts the migration.
func (m *Manager) remapFrontmatterPass() error {
	db := m.db.Writer()
	rows, err := db.Query(`SELECT id, path, created FROM notes`)
	if err != nil {
		return fmt.Errorf("migrate: list notes for file pass: %w", err)
	}
	type entry struct {
		id, path string
		created  time.Time
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.path, &e.created); err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		data, err := m.store.Read(e.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				m.logger.Warn("migration: file missing, flagged for rescan",
					slog.String("path", e.path))
				if _, err := db.Exec(`UPDATE notes SET content_hash = '' WHERE id = ?`, e.id); err != nil {
					return fmt.Errorf("migrate: flag %s: %w", e.path, err)
				}
				m.reindexPaths = append(m.reindexPaths, e.path)
				continue
			}
			return fmt.Errorf("migrate: read %s: %w", e.path, err)
		}

		doc := frontmatter.Parse(data)
		createdStr := e.created.UTC().Format(time.RFC3339)
		if cur, ok := doc.Fields["id"].(string); ok && cur == e.id {
			if _, hasCreated := doc.Fields["created"]; hasCreated {
				continue // already written by an earlier run
			}
		}

		merged, err := frontmatter.Merge(data, map[string]any{
			"id":      e.id,
			"created": createdStr,
		})
		if err != nil {
			return fmt.Errorf("migrate: merge front-matter %s: %w", e.path, err)
		}
		if err := m.store.Write(e.path, merged); err != nil {
			return fmt.Errorf("migrate: write %s: %w", e.path, err)
		}
		_, err = db.Exec(`UPDATE notes SET content_hash = ?, size = ? WHERE id = ?`,
			checksum.Sum(merged), len(merged), e.id)
		if err != nil {
			return fmt.Errorf("migrate: refresh hash %s: %w", e.path, err)
		}
	}
	return nil
}
