package frontmatter

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	data := []byte("---\ntitle: Hi\n---\n\nBody text.\n")
	block, body, ok := Split(data)
	if !ok {
		t.Fatal("expected front-matter")
	}
	if !strings.Contains(string(block), "title: Hi") {
		t.Errorf("block = %q", block)
	}
	if body != "Body text.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitNoFrontmatter(t *testing.T) {
	data := []byte("Just a body.\n")
	_, body, ok := Split(data)
	if ok {
		t.Fatal("unexpected front-matter")
	}
	if body != "Just a body.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSplitUnclosedBlock(t *testing.T) {
	data := []byte("---\ntitle: dangling\nno closing delimiter")
	_, body, ok := Split(data)
	if ok {
		t.Fatal("unclosed block should not count as front-matter")
	}
	if body != string(data) {
		t.Errorf("body = %q", body)
	}
}

func TestParse(t *testing.T) {
	doc := Parse([]byte("---\ntitle: My Note\ntags: [go, sqlite]\npriority: 2\n---\n\ncontent\n"))
	if doc.Fields["title"] != "My Note" {
		t.Errorf("title = %v", doc.Fields["title"])
	}
	if doc.Fields["priority"] != 2 {
		t.Errorf("priority = %v", doc.Fields["priority"])
	}
	tags, ok := doc.Fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %v", doc.Fields["tags"])
	}
	if doc.Body != "content\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParseTolerantFallback(t *testing.T) {
	// Unquoted value with a colon is invalid YAML; the tolerant parser still
	// recovers the fields.
	doc := Parse([]byte("---\ntitle: note: with colon\ntags:\n- a\n- b\n---\n\nbody\n"))
	if doc.Fields["title"] != "note: with colon" {
		t.Errorf("title = %v", doc.Fields["title"])
	}
	tags, ok := doc.Fields["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %v", doc.Fields["tags"])
	}
}

func TestMergePreservesFields(t *testing.T) {
	data := []byte("---\ntitle: Keep Me\ncustom_field: original\ntags:\n  - a\n---\n\nbody stays\n")
	merged, err := Merge(data, map[string]any{"id": "n-abc12345", "created": "2024-01-02T03:04:05Z"})
	if err != nil {
		t.Fatal(err)
	}
	out := string(merged)

	for _, want := range []string{
		"title: Keep Me",
		"custom_field: original",
		"id: n-abc12345",
		"created: \"2024-01-02T03:04:05Z\"",
		"- a",
		"body stays",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("merged output missing %q:\n%s", want, out)
		}
	}

	// Existing field order is preserved: title stays first.
	doc := Parse(merged)
	if doc.Fields["title"] != "Keep Me" {
		t.Errorf("round-trip title = %v", doc.Fields["title"])
	}
	if idx := strings.Index(out, "title:"); idx > strings.Index(out, "id:") {
		t.Error("merge reordered existing fields")
	}
}

func TestMergeOverwritesValue(t *testing.T) {
	merged, err := Merge([]byte("---\nid: old-id\n---\n\nbody\n"), map[string]any{"id": "n-deadbeef"})
	if err != nil {
		t.Fatal(err)
	}
	doc := Parse(merged)
	if doc.Fields["id"] != "n-deadbeef" {
		t.Errorf("id = %v", doc.Fields["id"])
	}
}

func TestMergeWithoutFrontmatter(t *testing.T) {
	merged, err := Merge([]byte("plain body\n"), map[string]any{"id": "n-abc12345"})
	if err != nil {
		t.Fatal(err)
	}
	doc := Parse(merged)
	if doc.Fields["id"] != "n-abc12345" {
		t.Errorf("id = %v", doc.Fields["id"])
	}
	if !strings.Contains(doc.Body, "plain body") {
		t.Errorf("body lost: %q", doc.Body)
	}
}

func TestReplaceBody(t *testing.T) {
	data := []byte("---\ntitle: T\n---\n\nold body\n")
	out := ReplaceBody(data, "new body\n")
	doc := Parse(out)
	if doc.Fields["title"] != "T" {
		t.Errorf("front-matter lost: %v", doc.Fields)
	}
	if doc.Body != "new body\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"from front-matter", "---\ntitle: FM Title\n---\n\n# Heading\n", "FM Title"},
		{"from first heading", "---\ntags: [x]\n---\n\n# Heading Title\n\ntext\n", "Heading Title"},
		{"no title at all", "just text\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(Parse([]byte(tt.data))); got != tt.want {
				t.Errorf("DeriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTags(t *testing.T) {
	doc := Parse([]byte("---\ntags: [go, notes]\n---\n\nbody\n"))
	tags := Tags(doc)
	if len(tags) != 2 || tags[0] != "go" || tags[1] != "notes" {
		t.Errorf("Tags = %v", tags)
	}
}
