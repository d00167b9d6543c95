package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

const noteColumns = `id, type, filename, path, title, content, content_hash, created, updated, size, mtime, archived`

func scanNote(row interface{ Scan(...any) error }) (*models.Note, error) {
	var n models.Note
	var mtime sql.NullTime
	err := row.Scan(&n.ID, &n.Type, &n.Filename, &n.Path, &n.Title, &n.Content,
		&n.ContentHash, &n.Created, &n.Updated, &n.Size, &mtime, &n.Archived)
	if err != nil {
		return nil, err
	}
	if mtime.Valid {
		n.MTime = mtime.Time
	}
	return &n, nil
}

// GetNote returns a note by id.
func (db *DB) GetNote(id string) (*models.Note, error) {
	n, err := scanNote(db.rw.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note %s: %w", id, err)
	}
	return n, nil
}

// GetNoteByPath returns a note by its vault-relative path.
func (db *DB) GetNoteByPath(path string) (*models.Note, error) {
	n, err := scanNote(db.rw.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note by path %s: %w", path, err)
	}
	return n, nil
}

// GetNoteByTypeFilename returns a note by its unique (type, filename) pair.
func (db *DB) GetNoteByTypeFilename(noteType, filename string) (*models.Note, error) {
	n, err := scanNote(db.rw.QueryRow(
		`SELECT `+noteColumns+` FROM notes WHERE type = ? AND filename = ?`, noteType, filename))
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note %s/%s: %w", noteType, filename, err)
	}
	return n, nil
}

// ListRecent returns notes ordered by updated descending, optionally
// restricted to one type. The filter lives in the SQL so a full page comes
// back even when other types dominate the recent window.
func (db *DB) ListRecent(noteType string, limit, offset int) ([]*models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + noteColumns + ` FROM notes`
	var args []any
	if noteType != "" {
		q += ` WHERE type = ?`
		args = append(args, noteType)
	}
	q += ` ORDER BY updated DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := db.rw.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MetadataFor returns all metadata entries for a note.
func (db *DB) MetadataFor(id string) ([]models.MetadataEntry, error) {
	rows, err := db.rw.Query(
		`SELECT note_id, key, value, value_type FROM note_metadata WHERE note_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("index: metadata for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.MetadataEntry
	for rows.Next() {
		var m models.MetadataEntry
		if err := rows.Scan(&m.NoteID, &m.Key, &m.Value, &m.ValueType); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Backlinks returns the ids of notes that link to the given note.
func (db *DB) Backlinks(id string) ([]string, error) {
	rows, err := db.rw.Query(`SELECT DISTINCT source_id FROM note_links WHERE target_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TitleIndex returns a title → id lookup over all notes. When two notes
// share a title the most recently updated one wins.
func (db *DB) TitleIndex() (map[string]string, error) {
	rows, err := db.rw.Query(`SELECT title, id FROM notes WHERE title != '' ORDER BY updated ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: title index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var title, id string
		if err := rows.Scan(&title, &id); err != nil {
			return nil, err
		}
		out[title] = id
	}
	return out, rows.Err()
}

// AllContentHashes returns path → content_hash for every indexed note.
// The watcher uses it to skip files whose bytes have not changed.
func (db *DB) AllContentHashes() (map[string]string, error) {
	rows, err := db.rw.Query(`SELECT path, content_hash FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

// CountNotes returns the number of rows in notes.
func (db *DB) CountNotes() (int, error) {
	var n int
	if err := db.rw.QueryRow(`SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count notes: %w", err)
	}
	return n, nil
}
