// Package noteservice is the CRUD layer collaborators use to mutate notes.
// Every mutation goes through the Index Maintainer so the database and the
// vault files stay in step.
package noteservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Backlinks []string       `json:"backlinks"`
	Created   time.Time      `json:"created"`
	Updated   time.Time      `json:"updated"`
}

// Service coordinates storage and index operations.
type Service struct {
	store      storage.Provider
	db         *index.DB
	maintainer *index.Maintainer
}

// NewService creates a note service.
func NewService(store storage.Provider, db *index.DB, maintainer *index.Maintainer) *Service {
	return &Service{store: store, db: db, maintainer: maintainer}
}

// GetNote returns a note by id, enriched with metadata and backlinks.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(n)
}

// CreateNote writes a new note file and indexes it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	id, err := s.maintainer.IndexFile(path, content, time.Now())
	if err != nil {
		return nil, err
	}
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(n)
}

// UpdateNote rewrites an existing note's file and reindexes it.
func (s *Service) UpdateNote(_ context.Context, id string, content []byte) (*NoteDetail, error) {
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(n.Path, content); err != nil {
		return nil, err
	}
	if _, err := s.maintainer.IndexFile(n.Path, content, time.Now()); err != nil {
		return nil, err
	}
	updated, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(updated)
}

// DeleteNote removes a note's file and its index row; metadata, links, and
// hierarchy rows cascade with the row.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	n, err := s.db.GetNote(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(n.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.maintainer.Remove(id)
}

// ListNotes returns recent notes with a total count.
func (s *Service) ListNotes(_ context.Context, limit, offset int) ([]*NoteDetail, int, error) {
	notes, err := s.db.ListRecent("", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.db.CountNotes()
	if err != nil {
		return nil, 0, err
	}
	out := make([]*NoteDetail, 0, len(notes))
	for _, n := range notes {
		d, err := s.buildDetail(n)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, nil
}

// Rebuild clears derived state and rescans the entire vault.
func (s *Service) Rebuild(_ context.Context, progress index.ProgressFunc) error {
	return s.maintainer.Rebuild(progress)
}

func (s *Service) buildDetail(n *models.Note) (*NoteDetail, error) {
	entries, err := s.db.MetadataFor(n.ID)
	if err != nil {
		return nil, err
	}
	metadata := make(map[string]any, len(entries))
	tags := []string{}
	for _, entry := range entries {
		v := models.DecodeMetadataValue(entry.Value, entry.ValueType)
		metadata[entry.Key] = v
		if entry.Key == "tags" {
			if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if str, ok := item.(string); ok {
						tags = append(tags, str)
					}
				}
			}
		}
	}

	backlinks, err := s.db.Backlinks(n.ID)
	if err != nil {
		return nil, err
	}
	if backlinks == nil {
		backlinks = []string{}
	}

	return &NoteDetail{
		ID:        n.ID,
		Type:      n.Type,
		Filename:  n.Filename,
		Path:      n.Path,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      tags,
		Metadata:  metadata,
		Backlinks: backlinks,
		Created:   n.Created,
		Updated:   n.Updated,
	}, nil
}
