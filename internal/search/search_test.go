package search

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/testutil"
)

func testEngine(t *testing.T) (*Engine, *index.Maintainer) {
	t.Helper()
	db := testutil.TestDB(t)
	_, store := testutil.TestVault(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(db, store, logger), index.NewMaintainer(db, store, logger)
}

func seedNote(t *testing.T, m *index.Maintainer, id, noteType, title, content string, updated time.Time, meta map[string]any) {
	t.Helper()
	n := &models.Note{
		ID:       id,
		Type:     noteType,
		Filename: title + ".md",
		Path:     noteType + "/" + title + ".md",
		Title:    title,
		Content:  content,
		Created:  updated.Add(-24 * time.Hour),
		Updated:  updated,
	}
	var entries []models.MetadataEntry
	for k, v := range meta {
		value, vt := models.EncodeMetadataValue(v)
		entries = append(entries, models.MetadataEntry{NoteID: id, Key: k, Value: value, ValueType: vt})
	}
	if err := m.Upsert(n, entries); err != nil {
		t.Fatal(err)
	}
}

func TestSimpleEmptyQueryListsRecent(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "Older", "older body", now.Add(-time.Hour), nil)
	seedNote(t, m, "n-22222222", "notes", "Newer", "newer body", now, nil)

	results, err := e.Simple("", "", 10)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ID != "n-22222222" {
		t.Errorf("first result = %s, want the most recently updated", results[0].ID)
	}
}

func TestSimpleEmptyQueryTypeFilterFillsLimit(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	// Three recently-updated notes of another type must not crowd the
	// requested type out of a limit-2 page.
	for i := 0; i < 3; i++ {
		seedNote(t, m, fmt.Sprintf("n-aaaaaaa%d", i), "notes", fmt.Sprintf("Noise %d", i), "x", now, nil)
	}
	seedNote(t, m, "n-11111111", "projects", "P One", "a", now.Add(-time.Hour), nil)
	seedNote(t, m, "n-22222222", "projects", "P Two", "b", now.Add(-2*time.Hour), nil)

	results, err := e.Simple("", "projects", 2)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want a full page of the filtered type", len(results))
	}
	for _, r := range results {
		if r.Type != "projects" {
			t.Errorf("result %s has type %q", r.ID, r.Type)
		}
	}
}

func TestSimpleQueryAndTypeFilter(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "Match", "contains zebrafish today", now, nil)
	seedNote(t, m, "n-22222222", "projects", "AlsoMatch", "zebrafish elsewhere", now, nil)

	results, err := e.Simple("zebrafish", "", 10)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	results, err = e.Simple("zebrafish", "projects", 10)
	if err != nil {
		t.Fatalf("Simple with type: %v", err)
	}
	if len(results) != 1 || results[0].ID != "n-22222222" {
		t.Errorf("type-filtered results = %+v", results)
	}
}

func TestHydrateMetadataAndTags(t *testing.T) {
	e, m := testEngine(t)
	seedNote(t, m, "n-33333333", "notes", "Tagged", "tagged body", time.Now().UTC(), map[string]any{
		"tags":     []any{"go", "sqlite"},
		"priority": 2,
	})

	results, err := e.Simple("", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if len(r.Tags) != 2 {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Metadata["priority"] != 2.0 {
		t.Errorf("priority = %v", r.Metadata["priority"])
	}
	if r.Snippet == "" {
		t.Error("snippet not generated")
	}
}

func TestMakeSnippetWordBoundary(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += fmt.Sprintf("word%d ", i)
	}
	s := makeSnippet(long)
	if len(s) > snippetBudget+4 {
		t.Errorf("snippet length = %d", len(s))
	}
	if s[len(s)-3:] != "..." {
		t.Errorf("snippet not ellipsized: %q", s)
	}
	// Never cut mid-word.
	if s[len(s)-4] == ' ' {
		t.Errorf("snippet ends on a space: %q", s)
	}
}

func TestAdvancedMetadataFilter(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "High", "a", now, map[string]any{"priority": 3, "status": "open"})
	seedNote(t, m, "n-22222222", "notes", "Low", "b", now, map[string]any{"priority": 1, "status": "open"})
	seedNote(t, m, "n-33333333", "projects", "Stale", "c", now, map[string]any{"status": "done"})

	page, err := e.Advanced(AdvancedQuery{
		Metadata: []MetadataFilter{
			{Key: "priority", Op: OpGte, Value: 2},
			{Key: "status", Op: OpEq, Value: "open"},
		},
	})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Total != 1 || len(page.Results) != 1 || page.Results[0].ID != "n-11111111" {
		t.Errorf("page = %+v", page)
	}
}

func TestAdvancedTypeWithMetadataFilter(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "Open Note", "a", now, map[string]any{"status": "open"})
	seedNote(t, m, "n-22222222", "projects", "Open Project", "b", now, map[string]any{"status": "open"})
	seedNote(t, m, "n-33333333", "projects", "Done Project", "c", now, map[string]any{"status": "done"})

	// Type and metadata placeholders bind in different clauses; the type
	// value must not land in the join's key slot.
	page, err := e.Advanced(AdvancedQuery{
		Types:    []string{"projects"},
		Metadata: []MetadataFilter{{Key: "status", Op: OpEq, Value: "open"}},
	})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Total != 1 || len(page.Results) != 1 || page.Results[0].ID != "n-22222222" {
		t.Errorf("page = %+v", page)
	}
}

func TestAdvancedTypeAndTextFilter(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "One", "needle in body", now, nil)
	seedNote(t, m, "n-22222222", "projects", "Two", "needle again", now, nil)

	page, err := e.Advanced(AdvancedQuery{Types: []string{"projects"}, Text: "needle"})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Total != 1 || page.Results[0].ID != "n-22222222" {
		t.Errorf("page = %+v", page)
	}
}

func TestAdvancedDateWindow(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "Fresh", "a", now, nil)
	seedNote(t, m, "n-22222222", "notes", "Stale", "b", now.Add(-30*24*time.Hour), nil)

	page, err := e.Advanced(AdvancedQuery{
		Dates: []DateFilter{{Field: "updated", Within: "7d"}},
	})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Total != 1 || page.Results[0].ID != "n-11111111" {
		t.Errorf("page = %+v", page)
	}
}

func TestAdvancedPagination(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("n-0000000%d", i)
		seedNote(t, m, id, "notes", fmt.Sprintf("Note%d", i), "body", now.Add(time.Duration(i)*time.Minute), nil)
	}

	page, err := e.Advanced(AdvancedQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Total != 5 || len(page.Results) != 2 || !page.HasMore {
		t.Errorf("first page = total %d, len %d, hasMore %v", page.Total, len(page.Results), page.HasMore)
	}

	page, err = e.Advanced(AdvancedQuery{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Advanced offset: %v", err)
	}
	if len(page.Results) != 1 || page.HasMore {
		t.Errorf("last page = len %d, hasMore %v", len(page.Results), page.HasMore)
	}
}

func TestAdvancedSort(t *testing.T) {
	e, m := testEngine(t)
	now := time.Now().UTC()
	seedNote(t, m, "n-11111111", "notes", "Bravo", "b", now, nil)
	seedNote(t, m, "n-22222222", "notes", "Alpha", "a", now.Add(-time.Hour), nil)

	page, err := e.Advanced(AdvancedQuery{Sort: []SortKey{{Field: "title"}}})
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if page.Results[0].Title != "Alpha" {
		t.Errorf("sorted first = %q", page.Results[0].Title)
	}
}

func TestAdvancedValidation(t *testing.T) {
	e, _ := testEngine(t)

	if _, err := e.Advanced(AdvancedQuery{Metadata: []MetadataFilter{{Key: "k", Op: "BOGUS", Value: 1}}}); err == nil {
		t.Error("invalid operator accepted")
	}
	if _, err := e.Advanced(AdvancedQuery{Sort: []SortKey{{Field: "content"}}}); err == nil {
		t.Error("unsortable field accepted")
	}
	if _, err := e.Advanced(AdvancedQuery{Dates: []DateFilter{{Field: "updated", Within: "7x"}}}); err == nil {
		t.Error("invalid relative span accepted")
	}
}

func TestParseRelativeSpan(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * day},
		{"2w", 14 * day},
		{"1m", 30 * day},
		{"1y", 365 * day},
	}
	for _, tt := range tests {
		got, err := parseRelativeSpan(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseRelativeSpan(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
	for _, bad := range []string{"", "d7", "7", "7h", "x"} {
		if _, err := parseRelativeSpan(bad); err == nil {
			t.Errorf("parseRelativeSpan(%q) accepted", bad)
		}
	}
}
