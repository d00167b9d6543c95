//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

// The shadow index is an external-content FTS5 table kept in lock-step with
// notes by triggers; it is never written to directly by application code.
const ftsSchemaSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	title,
	content,
	content=notes,
	content_rowid=rowid,
	tokenize = 'unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS notes_fts_ai AFTER INSERT ON notes BEGIN
	INSERT INTO notes_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_ad AFTER DELETE ON notes BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_au AFTER UPDATE ON notes BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
	INSERT INTO notes_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;
`

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(ftsSchemaSQL)
	return err
}

// Hit is one full-text match.
type Hit struct {
	ID      string
	Snippet string
	Score   float64
}

// FullText runs an FTS5 match joined with an optional type filter and
// returns ids, snippets, and bm25-derived scores.
func (db *DB) FullText(query, noteType string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT n.id,
		       snippet(notes_fts, 1, '', '', '...', 32),
		       -bm25(notes_fts)
		FROM notes_fts
		JOIN notes n ON n.rowid = notes_fts.rowid
		WHERE notes_fts MATCH ?`
	args := []any{query}
	if noteType != "" {
		q += ` AND n.type = ?`
		args = append(args, noteType)
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := db.rw.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: fts search: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Snippet, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// RebuildFTS repopulates the shadow index from the notes table. Migrations
// call this after recreating the notes table, since dropping the table also
// drops the sync triggers and any rows they had written.
func (db *DB) RebuildFTS() error {
	if _, err := db.rw.Exec(`INSERT INTO notes_fts(notes_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("index: rebuild fts: %w", err)
	}
	return nil
}
