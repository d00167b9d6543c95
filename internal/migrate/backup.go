package migrate

import (
	"database/sql"
	"fmt"
)

// Destructive migrations follow a backup-then-transform protocol: the tables
// to be altered are copied into "<name>_backup" shadow tables first, the
// primaries are dropped and recreated with the new schema, and then
// repopulated from the backups. The backups are retained afterward (not
// cleaned up) so an interrupted transform can resume from them and an
// operator can inspect what the migration read. Whether they are ever
// dropped is an operator decision surfaced through config, not a TTL baked
// in here.

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("migrate: check table %s: %w", name, err)
	}
	return n > 0, nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("migrate: table info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func countRows(db *sql.DB, table string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("migrate: count %s: %w", table, err)
	}
	return n, nil
}

// snapshotTable copies src into src_backup unless a backup already exists.
// An existing backup is reused, never overwritten: it is the authoritative
// snapshot from the first attempt, and overwriting it after a partial
// transform would capture half-migrated rows.
func snapshotTable(db *sql.DB, src string) (backup string, reused bool, err error) {
	backup = src + "_backup"
	exists, err := tableExists(db, backup)
	if err != nil {
		return "", false, err
	}
	if exists {
		return backup, true, nil
	}
	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`, backup, src)); err != nil {
		return "", false, fmt.Errorf("migrate: snapshot %s: %w", src, err)
	}
	return backup, false, nil
}

// verifySurvival is the primary defense against silent data loss: a
// transform whose source had rows but whose destination ended up empty is a
// fatal, non-idempotent failure, never something to continue past.
func verifySurvival(db *sql.DB, backup, primary string) error {
	src, err := countRows(db, backup)
	if err != nil {
		return err
	}
	if src == 0 {
		return nil
	}
	dst, err := countRows(db, primary)
	if err != nil {
		return err
	}
	if dst == 0 {
		return fmt.Errorf("migrate: %s had %d rows but %s is empty after transform; aborting to avoid data loss", backup, src, primary)
	}
	return nil
}
