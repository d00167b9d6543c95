// Package models defines the domain types for Othala.
package models

import "time"

// Note represents one indexed Markdown document in the vault.
//
// ID is the immutable identity: a short random token assigned once and never
// reassigned, independent of the note's title or file path. Path is always
// vault-root-relative with forward slashes, regardless of host OS, so a vault
// stays portable between machines and users.
type Note struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	Size        int64     `json:"size"`
	MTime       time.Time `json:"mtime"`
	Archived    bool      `json:"archived"`
}

// InternalLink is a wikilink edge between two notes. TargetID is empty until
// the target title has been resolved; such a row is a broken link.
type InternalLink struct {
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id,omitempty"`
	TargetTitle string `json:"target_title"`
	LinkText    string `json:"link_text"`
	LineNumber  int    `json:"line_number"`
}

// ExternalLink is a URL reference extracted from a note body.
type ExternalLink struct {
	NoteID   string `json:"note_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	LinkType string `json:"link_type"`
}

// HierarchyEdge is a parent/child relation between notes, unique per pair.
type HierarchyEdge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Position int    `json:"position"`
}

// SearchResult is one hit returned by any of the search modes.
type SearchResult struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Type     string         `json:"type"`
	Tags     []string       `json:"tags"`
	Score    float64        `json:"score"`
	Snippet  string         `json:"snippet"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
	Size     int64          `json:"size"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
