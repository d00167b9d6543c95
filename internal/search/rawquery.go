package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Raw queries are caller-supplied SQL restricted to SELECT against the notes
// and note_metadata tables. They execute on the read-only connection, but
// validation still rejects anything mutating before it gets near the driver.

// forbiddenKeywords are matched on word boundaries, so a column literally
// named "created" or "updated" is never rejected.
var forbiddenKeywords = []string{"drop", "delete", "insert", "update", "alter", "create", "exec", "execute"}

var (
	forbiddenRes = func() map[string]*regexp.Regexp {
		out := make(map[string]*regexp.Regexp, len(forbiddenKeywords))
		for _, kw := range forbiddenKeywords {
			out[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
		}
		return out
	}()
	selectWordRe = regexp.MustCompile(`(?i)\bselect\b`)
	limitRe      = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	aggregateRe  = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|total|group_concat)\s*\(|\bgroup\s+by\b`)
)

// maxSelects is a crude subquery-complexity guard.
const maxSelects = 3

// ValidateRawQuery rejects non-SELECT statements, forbidden keywords, and
// excessive subquery nesting, each with a specific named reason.
func ValidateRawQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("search: empty query: %w", apperr.ErrInvalidQuery)
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return fmt.Errorf("search: only SELECT statements are allowed: %w", apperr.ErrInvalidQuery)
	}
	for _, kw := range forbiddenKeywords {
		if forbiddenRes[kw].MatchString(trimmed) {
			return fmt.Errorf("search: forbidden keyword %q: %w", kw, apperr.ErrInvalidQuery)
		}
	}
	if len(selectWordRe.FindAllStringIndex(trimmed, -1)) > maxSelects {
		return fmt.Errorf("search: too many nested selects (max %d): %w", maxSelects, apperr.ErrInvalidQuery)
	}
	return nil
}

// RawResult is the outcome of a raw query. Aggregation queries bypass
// document hydration (their rows are not one-per-note) and come back as raw
// Rows; everything else is hydrated into Results.
type RawResult struct {
	Results    []models.SearchResult `json:"results,omitempty"`
	Rows       []map[string]any      `json:"rows,omitempty"`
	Aggregated bool                  `json:"aggregated"`
}

// Raw validates and executes a caller-supplied SELECT. A LIMIT is injected
// when the caller omitted one.
func (e *Engine) Raw(query string, defaultLimit int) (*RawResult, error) {
	if err := ValidateRawQuery(query); err != nil {
		return nil, err
	}
	if defaultLimit <= 0 {
		defaultLimit = 100
	}

	trimmed := strings.TrimRight(strings.TrimSpace(query), "; \t\n")
	if !limitRe.MatchString(trimmed) {
		trimmed = fmt.Sprintf("%s LIMIT %d", trimmed, defaultLimit)
	}

	ro, err := e.db.Reader()
	if err != nil {
		return nil, err
	}
	rows, err := ro.Query(trimmed)
	if err != nil {
		return nil, fmt.Errorf("search: raw query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("search: raw columns: %w", err)
	}

	var raw []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if isAggregation(query) {
		return &RawResult{Rows: raw, Aggregated: true}, nil
	}

	// Hydration assumes one row per note; rows without a recognizable id
	// column fall back to the raw representation.
	var results []models.SearchResult
	for _, row := range raw {
		id, _ := row["id"].(string)
		if id == "" {
			return &RawResult{Rows: raw, Aggregated: false}, nil
		}
		n, err := e.db.GetNote(id)
		if err != nil {
			continue
		}
		r, err := e.hydrate(n, 0, "")
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return &RawResult{Results: results}, nil
}

// isAggregation reports whether the query carries aggregate functions or
// GROUP BY. A trivial "SELECT * FROM notes" is never treated as one even
// though "count" could appear in a column value.
func isAggregation(query string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if strings.HasPrefix(normalized, "select * from notes") &&
		!strings.Contains(normalized, "group by") {
		return false
	}
	return aggregateRe.MatchString(query)
}
