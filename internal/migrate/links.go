package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/frontmatter"
	"github.com/starford/othala/internal/wikilink"
)

// migrateWikilinks rewrites title-addressed wikilinks into the
// identity-addressed [[id|display]] form, in both the database row and the
// on-disk file. Links whose target title resolves to no note are left
// untouched so a broken link stays visibly broken. Links already in identity
// form are skipped, which is what makes a re-run a no-op.
//
// Only notes whose content actually changed are queued for link-graph
// re-extraction, to avoid rewriting the graph for an entire vault.
func (m *Manager) migrateWikilinks() error {
	db := m.db.Writer()

	titles, err := m.db.TitleIndex()
	if err != nil {
		return err
	}
	resolve := func(target string) (string, bool) {
		id, ok := titles[target]
		return id, ok
	}

	rows, err := db.Query(`SELECT id, path, content FROM notes`)
	if err != nil {
		return fmt.Errorf("migrate: list notes for wikilinks: %w", err)
	}
	type noteRow struct{ id, path, content string }
	var notes []noteRow
	for rows.Next() {
		var n noteRow
		if err := rows.Scan(&n.id, &n.path, &n.content); err != nil {
			rows.Close()
			return err
		}
		notes = append(notes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	m.relinkIDs = []string{} // scoped: only changed notes are re-extracted

	for _, n := range notes {
		rewritten, changed := wikilink.Normalize(n.content, resolve)
		if !changed {
			continue
		}

		// The same rewritten body goes to both stores: the row first, then
		// the file with its front-matter re-merged so only the body changes.
		if _, err := db.Exec(`UPDATE notes SET content = ? WHERE id = ?`, rewritten, n.id); err != nil {
			return fmt.Errorf("migrate: update content %s: %w", n.id, err)
		}

		data, err := m.store.Read(n.path)
		switch {
		case err == nil:
			merged := frontmatter.ReplaceBody(data, rewritten)
			if err := m.store.Write(n.path, merged); err != nil {
				return fmt.Errorf("migrate: write %s: %w", n.path, err)
			}
			_, err = db.Exec(`UPDATE notes SET content_hash = ?, size = ? WHERE id = ?`,
				checksum.Sum(merged), len(merged), n.id)
			if err != nil {
				return fmt.Errorf("migrate: refresh hash %s: %w", n.path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			m.logger.Warn("migration: file missing during wikilink rewrite",
				slog.String("path", n.path))
			if _, err := db.Exec(`UPDATE notes SET content_hash = '' WHERE id = ?`, n.id); err != nil {
				return fmt.Errorf("migrate: flag %s: %w", n.path, err)
			}
			m.reindexPaths = append(m.reindexPaths, n.path)
		default:
			return fmt.Errorf("migrate: read %s: %w", n.path, err)
		}

		m.relinkIDs = append(m.relinkIDs, n.id)
	}
	return nil
}
