package migrate

import (
	"testing"

	"github.com/starford/othala/internal/testutil"
)

func TestSnapshotTableReusesExisting(t *testing.T) {
	db := testutil.TestDB(t)
	conn := db.Writer()

	if _, err := conn.Exec(`INSERT INTO notes (id, type, filename, path) VALUES ('n-11111111', 'notes', 'a.md', 'notes/a.md')`); err != nil {
		t.Fatal(err)
	}

	backup, reused, err := snapshotTable(conn, "notes")
	if err != nil {
		t.Fatalf("snapshotTable: %v", err)
	}
	if backup != "notes_backup" || reused {
		t.Fatalf("first snapshot = (%q, %v)", backup, reused)
	}

	// Mutate the primary, snapshot again: the original backup must survive
	// untouched, never be overwritten with the mutated rows.
	if _, err := conn.Exec(`DELETE FROM notes`); err != nil {
		t.Fatal(err)
	}
	_, reused, err = snapshotTable(conn, "notes")
	if err != nil {
		t.Fatalf("second snapshotTable: %v", err)
	}
	if !reused {
		t.Error("second snapshot should reuse the existing backup")
	}
	n, err := countRows(conn, "notes_backup")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("backup rows = %d, want the original 1", n)
	}
}

func TestVerifySurvival(t *testing.T) {
	db := testutil.TestDB(t)
	conn := db.Writer()

	if _, err := conn.Exec(`CREATE TABLE src_backup (id TEXT); CREATE TABLE src (id TEXT)`); err != nil {
		t.Fatal(err)
	}

	// Empty source: nothing to lose, no error regardless of destination.
	if err := verifySurvival(conn, "src_backup", "src"); err != nil {
		t.Errorf("empty source: %v", err)
	}

	if _, err := conn.Exec(`INSERT INTO src_backup VALUES ('x')`); err != nil {
		t.Fatal(err)
	}
	if err := verifySurvival(conn, "src_backup", "src"); err == nil {
		t.Error("rows in source but empty destination must be fatal")
	}

	if _, err := conn.Exec(`INSERT INTO src VALUES ('x')`); err != nil {
		t.Fatal(err)
	}
	if err := verifySurvival(conn, "src_backup", "src"); err != nil {
		t.Errorf("populated destination: %v", err)
	}
}

func TestColumnExists(t *testing.T) {
	db := testutil.TestDB(t)
	conn := db.Writer()

	ok, err := columnExists(conn, "notes", "content_hash")
	if err != nil || !ok {
		t.Errorf("content_hash: (%v, %v)", ok, err)
	}
	ok, err = columnExists(conn, "notes", "no_such_column")
	if err != nil || ok {
		t.Errorf("no_such_column: (%v, %v)", ok, err)
	}
}
