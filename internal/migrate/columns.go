package migrate

import "fmt"

// migrateAddColumns brings pre-1.1.0 notes tables up to the current column
// set. Each add is guarded by a table_info probe, so re-running against an
// already-migrated (or freshly created) table is a no-op.
func (m *Manager) migrateAddColumns() error {
	db := m.db.Writer()
	adds := []struct {
		column string
		ddl    string
	}{
		{"content_hash", `ALTER TABLE notes ADD COLUMN content_hash TEXT NOT NULL DEFAULT ''`},
		{"size", `ALTER TABLE notes ADD COLUMN size INTEGER NOT NULL DEFAULT 0`},
		{"mtime", `ALTER TABLE notes ADD COLUMN mtime DATETIME`},
		{"archived", `ALTER TABLE notes ADD COLUMN archived INTEGER NOT NULL DEFAULT 0`},
	}
	for _, add := range adds {
		exists, err := columnExists(db, "notes", add.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(add.ddl); err != nil {
			return fmt.Errorf("migrate: add column %s: %w", add.column, err)
		}
	}
	return nil
}
