// Package wikilink extracts and rewrites [[target]] cross-note references.
package wikilink

import (
	"regexp"
	"strings"

	"github.com/starford/othala/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
)

// Link is one wikilink occurrence with its byte-offset span in the content.
type Link struct {
	Target  string // target title, filename stem, or note id
	Display string // alias text, empty when the link has none
	Start   int    // byte offset of the opening brackets
	End     int    // byte offset just past the closing brackets
	Line    int    // 1-based line number
}

// IDAddressed reports whether the link already targets an immutable note id.
func (l Link) IDAddressed() bool {
	return models.IsNoteID(l.Target)
}

// Text returns the reader-visible text of the link.
func (l Link) Text() string {
	if l.Display != "" {
		return l.Display
	}
	return l.Target
}

// Extract parses every wikilink occurrence and its position out of content.
func Extract(content string) []Link {
	idxs := wikilinkRe.FindAllStringSubmatchIndex(content, -1)
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Link, 0, len(idxs))
	line := 1
	prev := 0
	for _, m := range idxs {
		start, end := m[0], m[1]
		inner := content[m[2]:m[3]]

		target := inner
		display := ""
		if i := strings.Index(inner, "|"); i >= 0 {
			target = strings.TrimSpace(inner[:i])
			display = strings.TrimSpace(inner[i+1:])
		} else {
			target = strings.TrimSpace(target)
		}
		if target == "" {
			continue
		}

		line += strings.Count(content[prev:start], "\n")
		prev = start

		out = append(out, Link{
			Target:  target,
			Display: display,
			Start:   start,
			End:     end,
			Line:    line,
		})
	}
	return out
}

// ExternalRef is a URL reference found in note content.
type ExternalRef struct {
	URL      string
	Title    string
	LinkType string // "markdown" or "plain"
}

// ExtractExternal returns deduplicated URL references: markdown-style links
// first, then bare URLs not already covered by a markdown link.
func ExtractExternal(content string) []ExternalRef {
	seen := make(map[string]struct{})
	var out []ExternalRef
	for _, m := range mdLinkRe.FindAllStringSubmatch(content, -1) {
		url := m[2]
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, ExternalRef{URL: url, Title: m[1], LinkType: "markdown"})
	}
	for _, url := range bareURLRe.FindAllString(content, -1) {
		url = strings.TrimRight(url, ".,;:")
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, ExternalRef{URL: url, LinkType: "plain"})
	}
	return out
}

// Normalize rewrites title- or filename-addressed wikilinks into the
// identity-addressed form [[id|display]], preserving the reader-visible
// text. resolve maps a target title to a note id; unresolved links are left
// untouched so a broken link stays visibly broken. Links already in identity
// form are never rewritten, which makes Normalize idempotent.
//
// Rewrites are applied in descending position order so earlier edits never
// invalidate the offsets of later ones. changed reports whether the content
// differs from the input.
func Normalize(content string, resolve func(target string) (string, bool)) (result string, changed bool) {
	links := Extract(content)
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		if l.IDAddressed() {
			continue
		}
		id, ok := resolve(l.Target)
		if !ok {
			continue
		}
		replacement := "[[" + id + "|" + l.Text() + "]]"
		content = content[:l.Start] + replacement + content[l.End:]
		changed = true
	}
	return content, changed
}
