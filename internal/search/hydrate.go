package search

import (
	"strings"

	"github.com/starford/othala/internal/frontmatter"
	"github.com/starford/othala/internal/models"
)

const snippetBudget = 200

// hydrate turns a note row into a search result: metadata rows are fetched
// and deserialized by value_type, tags derived from metadata, a snippet
// generated when the query engine did not already produce one, and size /
// modified enriched from a live filesystem stat. A missing backing file
// falls back to the stored values rather than failing the whole query.
func (e *Engine) hydrate(n *models.Note, score float64, snippet string) (models.SearchResult, error) {
	entries, err := e.db.MetadataFor(n.ID)
	if err != nil {
		return models.SearchResult{}, err
	}

	metadata := make(map[string]any, len(entries))
	var tags []string
	for _, entry := range entries {
		v := models.DecodeMetadataValue(entry.Value, entry.ValueType)
		metadata[entry.Key] = v
		if entry.Key == "tags" {
			if arr, ok := v.([]any); ok {
				for _, item := range arr {
					if s, ok := item.(string); ok {
						tags = append(tags, s)
					}
				}
			}
		}
	}
	if tags == nil {
		tags = []string{}
	}

	if snippet == "" {
		snippet = makeSnippet(n.Content)
	}

	size := n.Size
	modified := n.Updated
	if fm, statErr := e.store.Stat(n.Path); statErr == nil {
		size = fm.Size
		modified = fm.ModTime
	}

	return models.SearchResult{
		ID:       n.ID,
		Title:    n.Title,
		Type:     n.Type,
		Tags:     tags,
		Score:    score,
		Snippet:  snippet,
		Created:  n.Created,
		Modified: modified,
		Size:     size,
		Metadata: metadata,
	}, nil
}

// makeSnippet strips any front-matter and truncates the body at the nearest
// word boundary under the length budget.
func makeSnippet(content string) string {
	_, body, _ := frontmatter.Split([]byte(content))
	body = strings.TrimSpace(body)
	if len(body) <= snippetBudget {
		return body
	}
	cut := body[:snippetBudget]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
