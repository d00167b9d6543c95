// Package search implements the hybrid search engine: simple full-text
// queries, structured advanced queries, and sandboxed raw SELECT queries,
// all sharing one result-hydration path.
package search

import (
	"log/slog"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/storage"
)

// Engine answers queries against the note index.
type Engine struct {
	db     *index.DB
	store  storage.Provider
	logger *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(db *index.DB, store storage.Provider, logger *slog.Logger) *Engine {
	return &Engine{db: db, store: store, logger: logger}
}

// Simple answers a plain-text query. An empty query lists all notes ordered
// by updated descending; otherwise the query runs through the full-text
// index, optionally filtered by note type.
func (e *Engine) Simple(query, noteType string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	if query == "" {
		notes, err := e.db.ListRecent(noteType, limit, 0)
		if err != nil {
			return nil, err
		}
		out := make([]models.SearchResult, 0, len(notes))
		for _, n := range notes {
			r, err := e.hydrate(n, 0, "")
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	hits, err := e.db.FullText(query, noteType, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		n, err := e.db.GetNote(h.ID)
		if err != nil {
			// Row vanished between match and hydration; skip it.
			e.logger.Debug("search: hit without note", slog.String("id", h.ID))
			continue
		}
		r, err := e.hydrate(n, h.Score, h.Snippet)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
