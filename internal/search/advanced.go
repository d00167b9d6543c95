package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/models"
)

// Metadata filter operators.
const (
	OpEq   = "="
	OpNeq  = "!="
	OpGt   = ">"
	OpLt   = "<"
	OpGte  = ">="
	OpLte  = "<="
	OpLike = "LIKE"
	OpIn   = "IN"
)

// MetadataFilter matches one metadata key against a value. For OpIn, Value
// must be a slice.
type MetadataFilter struct {
	Key   string `json:"key"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Validate checks the filter against the operator whitelist.
func (f MetadataFilter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Key, validation.Required),
		validation.Field(&f.Op, validation.Required,
			validation.In(OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte, OpLike, OpIn)),
	)
}

// DateFilter restricts created or updated to a window: either a relative
// span like "7d", "1w", "2m", "1y", or an absolute Start/End pair.
type DateFilter struct {
	Field  string    `json:"field"` // "created" or "updated"
	Within string    `json:"within,omitempty"`
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
}

// Validate checks the field name and relative-span grammar.
func (f DateFilter) Validate() error {
	if err := validation.ValidateStruct(&f,
		validation.Field(&f.Field, validation.Required, validation.In("created", "updated")),
	); err != nil {
		return err
	}
	if f.Within != "" {
		if _, err := parseRelativeSpan(f.Within); err != nil {
			return err
		}
	}
	return nil
}

// SortKey orders results by one column.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// sortColumns whitelists sortable fields to their SQL columns.
var sortColumns = map[string]string{
	"title":    "title",
	"type":     "type",
	"filename": "filename",
	"created":  "created",
	"updated":  "updated",
	"size":     "size",
}

// AdvancedQuery is the structured filter set compiled into one parameterized
// SQL query.
type AdvancedQuery struct {
	Types    []string         `json:"types,omitempty"`
	Metadata []MetadataFilter `json:"metadata,omitempty"`
	Dates    []DateFilter     `json:"dates,omitempty"`
	Text     string           `json:"text,omitempty"`
	Sort     []SortKey        `json:"sort,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Offset   int              `json:"offset,omitempty"`
}

// Validate checks filters, sort keys, and pagination bounds.
func (q AdvancedQuery) Validate() error {
	if err := validation.ValidateStruct(&q,
		validation.Field(&q.Limit, validation.Min(0), validation.Max(1000)),
		validation.Field(&q.Offset, validation.Min(0)),
	); err != nil {
		return err
	}
	for _, f := range q.Metadata {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, f := range q.Dates {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, s := range q.Sort {
		if _, ok := sortColumns[s.Field]; !ok {
			return fmt.Errorf("search: unsortable field %q", s.Field)
		}
	}
	return nil
}

// Page is one page of advanced-search results with pagination totals.
type Page struct {
	Results []models.SearchResult `json:"results"`
	Total   int                   `json:"total"`
	HasMore bool                  `json:"has_more"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

var relativeSpanRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

func parseRelativeSpan(s string) (time.Duration, error) {
	m := relativeSpanRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("search: invalid relative date span %q", s)
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	day := 24 * time.Hour
	switch m[2] {
	case "d":
		return time.Duration(n) * day, nil
	case "w":
		return time.Duration(n) * 7 * day, nil
	case "m":
		return time.Duration(n) * 30 * day, nil
	case "y":
		return time.Duration(n) * 365 * day, nil
	}
	return 0, fmt.Errorf("search: invalid relative date span %q", s)
}

// Advanced compiles the filter set into one parameterized query plus a
// paired COUNT query, and returns a page with has_more derived as
// offset + len(results) < total.
func (e *Engine) Advanced(q AdvancedQuery) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where, joins, args, err := compileFilters(q)
	if err != nil {
		return nil, err
	}

	base := `FROM notes n` + joins
	if len(where) > 0 {
		base += ` WHERE ` + strings.Join(where, ` AND `)
	}

	// Each metadata join is keyed by (note_id, key), the table's primary
	// key, so the joins cannot fan out rows and no DISTINCT is needed.
	var total int
	countArgs := make([]any, len(args))
	copy(countArgs, args)
	if err := e.db.Writer().QueryRow(`SELECT count(*) `+base, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("search: count: %w", err)
	}

	order := compileSort(q.Sort)
	sel := `SELECT n.id ` + base + order + ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := e.db.Writer().Query(sel, args...)
	if err != nil {
		return nil, fmt.Errorf("search: advanced query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(ids))
	for _, id := range ids {
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

	return &Page{
		Results: results,
		Total:   total,
		HasMore: q.Offset+len(results) < total,
		Limit:   limit,
		Offset:  q.Offset,
	}, nil
}

// compileFilters builds the WHERE clauses and metadata joins. Each metadata
// filter gets its own aliased join so filters on different keys compose with
// AND semantics. Join placeholders come before every WHERE placeholder in
// the assembled SQL, so join args are collected separately and prepended.
func compileFilters(q AdvancedQuery) (where []string, joins string, args []any, err error) {
	var joinArgs []any

	if len(q.Types) > 0 {
		ph := placeholders(len(q.Types))
		where = append(where, `n.type IN (`+ph+`)`)
		for _, t := range q.Types {
			args = append(args, t)
		}
	}

	for i, f := range q.Metadata {
		alias := fmt.Sprintf("m%d", i)
		joins += fmt.Sprintf(` JOIN note_metadata %s ON %s.note_id = n.id AND %s.key = ?`, alias, alias, alias)
		joinArgs = append(joinArgs, f.Key)

		switch f.Op {
		case OpIn:
			vals, ok := f.Value.([]any)
			if !ok {
				if strs, sok := f.Value.([]string); sok {
					for _, s := range strs {
						vals = append(vals, s)
					}
					ok = true
				}
			}
			if !ok || len(vals) == 0 {
				return nil, "", nil, fmt.Errorf("search: IN filter on %q needs a non-empty list", f.Key)
			}
			where = append(where, fmt.Sprintf(`%s.value IN (%s)`, alias, placeholders(len(vals))))
			args = append(args, vals...)
		case OpLike:
			where = append(where, fmt.Sprintf(`%s.value LIKE ?`, alias))
			args = append(args, fmt.Sprint(f.Value))
		case OpGt, OpLt, OpGte, OpLte:
			// Numeric comparison when the operand is a number; the stored
			// value is text, so cast.
			switch f.Value.(type) {
			case int, int64, float64:
				where = append(where, fmt.Sprintf(`CAST(%s.value AS REAL) %s ?`, alias, f.Op))
			default:
				where = append(where, fmt.Sprintf(`%s.value %s ?`, alias, f.Op))
			}
			args = append(args, f.Value)
		default:
			where = append(where, fmt.Sprintf(`%s.value %s ?`, alias, f.Op))
			args = append(args, fmt.Sprint(f.Value))
		}
	}

	now := time.Now().UTC()
	for _, f := range q.Dates {
		col := "n." + f.Field
		if f.Within != "" {
			span, perr := parseRelativeSpan(f.Within)
			if perr != nil {
				return nil, "", nil, perr
			}
			where = append(where, col+` >= ?`)
			args = append(args, now.Add(-span))
			continue
		}
		if !f.Start.IsZero() {
			where = append(where, col+` >= ?`)
			args = append(args, f.Start)
		}
		if !f.End.IsZero() {
			where = append(where, col+` <= ?`)
			args = append(args, f.End)
		}
	}

	if q.Text != "" {
		where = append(where, `(n.title LIKE ? OR n.content LIKE ?)`)
		like := "%" + q.Text + "%"
		args = append(args, like, like)
	}

	return where, joins, append(joinArgs, args...), nil
}

func compileSort(keys []SortKey) string {
	if len(keys) == 0 {
		return ` ORDER BY n.updated DESC`
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		col := sortColumns[k.Field]
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, "n."+col+" "+dir)
	}
	return ` ORDER BY ` + strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
