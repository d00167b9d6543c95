package frontmatter

import "strings"

// DeriveTitle returns the front-matter "title" if present, otherwise the
// first H1 heading in the body, otherwise the empty string.
func DeriveTitle(d *Doc) string {
	if t, ok := d.Fields["title"]; ok {
		if s, ok := t.(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(d.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Tags collects string entries of the front-matter "tags" field.
func Tags(d *Doc) []string {
	raw, ok := d.Fields["tags"]
	if !ok {
		return nil
	}
	var out []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
	case []string:
		for _, s := range v {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
