//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; full-text search falls back to LIKE over the
	// notes table, which already stores the content column.
	return nil
}

// Hit is one full-text match.
type Hit struct {
	ID      string
	Snippet string
	Score   float64
}

// FullText performs a LIKE-based match (fallback when FTS5 is absent).
func (db *DB) FullText(query, noteType string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	q := `
		SELECT id, substr(content, 1, 200), 1.0
		FROM notes
		WHERE (title LIKE ? OR content LIKE ?)`
	args := []any{like, like}
	if noteType != "" {
		q += ` AND type = ?`
		args = append(args, noteType)
	}
	q += ` ORDER BY updated DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.rw.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: like search: %w", err)
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

// RebuildFTS is a no-op without FTS5.
func (db *DB) RebuildFTS() error { return nil }
