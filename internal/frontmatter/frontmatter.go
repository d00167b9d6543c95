// Package frontmatter parses, merges, and serializes the YAML front-matter
// block of Markdown vault files.
//
// Merging is structural: the existing block is parsed into a YAML document
// model, updated fields are set in place, and the block is re-serialized, so
// unrelated fields, their values, and their order survive a rewrite. Blind
// string substitution is never used.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Doc is a parsed vault file: front-matter fields plus the Markdown body.
type Doc struct {
	Fields map[string]any
	Body   string
}

// Split separates the raw YAML block (without delimiters) from the body.
// ok is false when the file carries no front-matter.
func Split(data []byte) (yamlBlock []byte, body string, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter; treat everything as body.
		return nil, string(data), false
	}
	yamlBlock = rest[:idx]
	after := rest[idx+1+len(delim):]
	return yamlBlock, strings.TrimLeft(string(after), "\n\r"), true
}

// Parse extracts front-matter fields and body from raw file bytes. Invalid
// YAML falls back to the tolerant line parser rather than failing, so one
// malformed file never aborts a vault scan.
func Parse(data []byte) *Doc {
	block, body, ok := Split(data)
	if !ok {
		return &Doc{Fields: map[string]any{}, Body: body}
	}
	var fields map[string]any
	if err := yaml.Unmarshal(block, &fields); err != nil || fields == nil {
		fields = parseTolerant(block)
	}
	return &Doc{Fields: fields, Body: body}
}

// parseTolerant is a forgiving key:value/array parser for front-matter that
// is not valid YAML. It understands "key: value", inline "[a, b]" arrays,
// and "- item" list continuation lines.
func parseTolerant(block []byte) map[string]any {
	fields := map[string]any{}
	var lastKey string
	for _, line := range strings.Split(string(block), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") && lastKey != "" {
			item := strings.TrimSpace(trimmed[2:])
			switch existing := fields[lastKey].(type) {
			case []any:
				fields[lastKey] = append(existing, item)
			default:
				fields[lastKey] = []any{item}
			}
			continue
		}
		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		lastKey = key
		if value == "" {
			fields[key] = nil // may become an array via "-" lines
			continue
		}
		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			inner := strings.TrimSpace(value[1 : len(value)-1])
			var arr []any
			if inner != "" {
				for _, part := range strings.Split(inner, ",") {
					arr = append(arr, strings.Trim(strings.TrimSpace(part), `"'`))
				}
			}
			fields[key] = arr
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	return fields
}

// Merge sets the given fields in the file's front-matter, preserving every
// other field and the body untouched. A file without front-matter gains a
// fresh block. New fields take precedence over existing values.
func Merge(data []byte, fields map[string]any) ([]byte, error) {
	block, body, ok := Split(data)
	if !ok {
		return serialize(mapToNode(fields), body)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil || len(doc.Content) == 0 {
		// Front-matter exists but is not structurally valid YAML. Rebuild it
		// from the tolerant parse plus the new fields; this is the only case
		// where field order is not preserved.
		merged := parseTolerant(block)
		for k, v := range fields {
			merged[k] = v
		}
		return serialize(mapToNode(merged), body)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		merged := parseTolerant(block)
		for k, v := range fields {
			merged[k] = v
		}
		return serialize(mapToNode(merged), body)
	}

	for k, v := range fields {
		setMappingKey(root, k, v)
	}
	return serialize(root, body)
}

// ReplaceBody swaps the Markdown body while keeping the front-matter block
// byte-identical.
func ReplaceBody(data []byte, newBody string) []byte {
	block, _, ok := Split(data)
	if !ok {
		return []byte(newBody)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.Write(block)
	buf.WriteString("\n" + delim + "\n\n")
	buf.WriteString(newBody)
	return buf.Bytes()
}

// setMappingKey updates the value for key in a YAML mapping node, appending
// the pair when the key is absent.
func setMappingKey(mapping *yaml.Node, key string, value any) {
	valNode := &yaml.Node{}
	_ = valNode.Encode(value)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = valNode
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	mapping.Content = append(mapping.Content, keyNode, valNode)
}

func mapToNode(fields map[string]any) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(fields)
	return n
}

func serialize(root *yaml.Node, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: close encoder: %w", err)
	}
	buf.WriteString(delim + "\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
