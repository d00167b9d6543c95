package index

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/frontmatter"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/wikilink"
)

// Maintainer keeps the index synchronized with the vault file tree. It is
// the only writer of notes, note_metadata, and the link tables outside of
// migrations.
type Maintainer struct {
	db     *DB
	store  storage.Provider
	logger *slog.Logger
}

// NewMaintainer creates a Maintainer.
func NewMaintainer(db *DB, store storage.Provider, logger *slog.Logger) *Maintainer {
	return &Maintainer{db: db, store: store, logger: logger}
}

// ProgressFunc reports (processed, total) during a full rebuild.
type ProgressFunc func(processed, total int)

// Upsert inserts or updates a note row and replaces its metadata and link
// rows, all within one transaction scoped to that note.
func (m *Maintainer) Upsert(n *models.Note, meta []models.MetadataEntry) error {
	tx, err := m.db.rw.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (id, type, filename, path, title, content, content_hash, created, updated, size, mtime, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type         = excluded.type,
			filename     = excluded.filename,
			path         = excluded.path,
			title        = excluded.title,
			content      = excluded.content,
			content_hash = excluded.content_hash,
			updated      = excluded.updated,
			size         = excluded.size,
			mtime        = excluded.mtime,
			archived     = excluded.archived
	`, n.ID, n.Type, n.Filename, n.Path, n.Title, n.Content, n.ContentHash,
		n.Created, n.Updated, n.Size, nullTime(n.MTime), n.Archived)
	if err != nil {
		return fmt.Errorf("index: upsert note %s: %w", n.ID, err)
	}

	// Replace the metadata set.
	if _, err := tx.Exec(`DELETE FROM note_metadata WHERE note_id = ?`, n.ID); err != nil {
		return fmt.Errorf("index: clear metadata: %w", err)
	}
	for _, entry := range meta {
		_, err := tx.Exec(`INSERT INTO note_metadata (note_id, key, value, value_type) VALUES (?, ?, ?, ?)`,
			n.ID, entry.Key, entry.Value, entry.ValueType)
		if err != nil {
			return fmt.Errorf("index: insert metadata %s: %w", entry.Key, err)
		}
	}

	if err := replaceLinks(tx, n.ID, n.Content); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceLinks re-extracts the link graph for one note inside tx. Internal
// link targets are resolved by title lookup; unresolved targets stay null
// (broken links remain visible rows).
func replaceLinks(tx *sql.Tx, noteID, content string) error {
	if _, err := tx.Exec(`DELETE FROM note_links WHERE source_id = ?`, noteID); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM external_links WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("index: clear external links: %w", err)
	}

	for _, l := range wikilink.Extract(content) {
		var targetID sql.NullString
		targetTitle := l.Target
		if l.IDAddressed() {
			targetID = sql.NullString{String: l.Target, Valid: true}
			targetTitle = l.Text()
		} else {
			var id string
			err := tx.QueryRow(`SELECT id FROM notes WHERE title = ?`, l.Target).Scan(&id)
			if err == nil {
				targetID = sql.NullString{String: id, Valid: true}
			}
		}
		_, err := tx.Exec(`INSERT INTO note_links (source_id, target_id, target_title, link_text, line_number)
			VALUES (?, ?, ?, ?, ?)`, noteID, targetID, targetTitle, l.Text(), l.Line)
		if err != nil {
			return fmt.Errorf("index: insert link: %w", err)
		}
	}

	for _, e := range wikilink.ExtractExternal(content) {
		_, err := tx.Exec(`INSERT INTO external_links (note_id, url, title, link_type) VALUES (?, ?, ?, ?)`,
			noteID, e.URL, e.Title, e.LinkType)
		if err != nil {
			return fmt.Errorf("index: insert external link: %w", err)
		}
	}
	return nil
}

// Remove deletes a note; metadata, links, and hierarchy rows cascade.
func (m *Maintainer) Remove(id string) error {
	if _, err := m.db.rw.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: remove note %s: %w", id, err)
	}
	return nil
}

// RemoveByPath deletes the note indexed at a vault path, if any.
func (m *Maintainer) RemoveByPath(path string) error {
	if _, err := m.db.rw.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: remove note at %s: %w", path, err)
	}
	return nil
}

// IndexFile parses raw file bytes and upserts them under relPath. The note
// keeps the id recorded in its front-matter when present, falls back to the
// id already indexed for its (type, filename), and otherwise gets a fresh
// identity.
func (m *Maintainer) IndexFile(relPath string, data []byte, mtime time.Time) (string, error) {
	doc := frontmatter.Parse(data)
	noteType, filename := storage.SplitTypeFilename(relPath)

	id := ""
	if raw, ok := doc.Fields["id"].(string); ok && models.IsNoteID(raw) {
		id = raw
	}
	if id == "" {
		if existing, err := m.db.GetNoteByTypeFilename(noteType, filename); err == nil {
			id = existing.ID
		} else {
			id = models.NewNoteID()
		}
	}

	created := mtime
	if raw, ok := doc.Fields["created"]; ok {
		if t, ok := parseFrontmatterTime(raw); ok {
			created = t
		}
	}
	if existing, err := m.db.GetNote(id); err == nil && !existing.Created.IsZero() {
		created = existing.Created
	}

	n := &models.Note{
		ID:          id,
		Type:        noteType,
		Filename:    filename,
		Path:        relPath,
		Title:       frontmatter.DeriveTitle(doc),
		Content:     doc.Body,
		ContentHash: checksum.Sum(data),
		Created:     created,
		Updated:     time.Now().UTC(),
		Size:        int64(len(data)),
		MTime:       mtime,
	}

	var meta []models.MetadataEntry
	for k, v := range doc.Fields {
		if k == "id" || k == "title" {
			continue
		}
		value, vt := models.EncodeMetadataValue(v)
		meta = append(meta, models.MetadataEntry{NoteID: id, Key: k, Value: value, ValueType: vt})
	}

	if err := m.Upsert(n, meta); err != nil {
		return "", err
	}
	return id, nil
}

// Rebuild clears all derived state and rescans the vault: every immediate
// subdirectory is treated as a note type and its markdown files are parsed
// and indexed. A single broken file is logged and skipped; it never aborts
// the rest of the scan.
func (m *Maintainer) Rebuild(progress ProgressFunc) error {
	if err := m.clearAll(); err != nil {
		return err
	}

	typeDirs, err := m.store.ListTypeDirs()
	if err != nil {
		return fmt.Errorf("index: rebuild: %w", err)
	}

	// Root-level files belong to the "general" type.
	files, err := m.store.ListType("")
	if err != nil {
		return fmt.Errorf("index: rebuild: %w", err)
	}
	for _, dir := range typeDirs {
		metas, err := m.store.ListType(dir)
		if err != nil {
			m.logger.Warn("rebuild: list type failed",
				slog.String("type", dir), slog.String("error", err.Error()))
			continue
		}
		files = append(files, metas...)
	}

	total := len(files)
	for i, fm := range files {
		data, err := m.store.Read(fm.Path)
		if err != nil {
			m.logger.Warn("rebuild: read failed",
				slog.String("path", fm.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := m.IndexFile(fm.Path, data, fm.ModTime); err != nil {
			m.logger.Warn("rebuild: index failed",
				slog.String("path", fm.Path), slog.String("error", err.Error()))
		} else {
			m.logger.Debug("rebuild: indexed", slog.String("path", fm.Path))
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	// Second pass: titles indexed late can now resolve links that were
	// broken during the scan.
	return m.ResolveLinks()
}

// ResolveLinks fills in target_id for link rows whose target_title now
// matches an indexed note.
func (m *Maintainer) ResolveLinks() error {
	_, err := m.db.rw.Exec(`
		UPDATE note_links
		SET target_id = (SELECT id FROM notes WHERE notes.title = note_links.target_title)
		WHERE target_id IS NULL
		  AND EXISTS (SELECT 1 FROM notes WHERE notes.title = note_links.target_title)
	`)
	if err != nil {
		return fmt.Errorf("index: resolve links: %w", err)
	}
	return nil
}

// ReextractLinks rebuilds the link graph from stored content for the given
// note ids, or for every note when ids is nil, then resolves targets.
func (m *Maintainer) ReextractLinks(ids []string) error {
	if ids == nil {
		rows, err := m.db.rw.Query(`SELECT id FROM notes`)
		if err != nil {
			return fmt.Errorf("index: list ids: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	for _, id := range ids {
		n, err := m.db.GetNote(id)
		if err != nil {
			m.logger.Warn("reextract: note missing", slog.String("id", id))
			continue
		}
		tx, err := m.db.rw.Begin()
		if err != nil {
			return fmt.Errorf("index: begin reextract: %w", err)
		}
		if err := replaceLinks(tx, n.ID, n.Content); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit reextract: %w", err)
		}
	}
	return m.ResolveLinks()
}

func (m *Maintainer) clearAll() error {
	tx, err := m.db.rw.Begin()
	if err != nil {
		return fmt.Errorf("index: begin clear: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Child tables cascade from notes, but clear them explicitly so a rebuild
	// also removes rows orphaned by older schema versions.
	for _, table := range []string{"note_links", "external_links", "note_metadata", "note_hierarchy", "notes"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func parseFrontmatterTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
