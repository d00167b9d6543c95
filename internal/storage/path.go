package storage

import (
	"path/filepath"
	"strings"
)

// ToAbsolute resolves a vault-relative forward-slash path against root using
// the host OS separator.
func ToAbsolute(rel, root string) string {
	return filepath.Join(root, filepath.FromSlash(rel))
}

// ToRelative converts an absolute path under root back to the portable
// vault-relative forward-slash form. For any relative path p and root r,
// ToRelative(ToAbsolute(p, r), r) == p.
func ToRelative(abs, root string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// SplitTypeFilename splits a vault-relative path into its note type (the
// immediate subdirectory) and filename. Files at the vault root get the
// "general" type.
func SplitTypeFilename(rel string) (noteType, filename string) {
	rel = strings.TrimPrefix(rel, "./")
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i], rel[i+1:]
	}
	return "general", rel
}
