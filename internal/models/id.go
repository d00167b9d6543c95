package models

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// noteIDRe matches the immutable-token identity form: "n-" followed by
// eight lowercase hex characters.
var noteIDRe = regexp.MustCompile(`^n-[0-9a-f]{8}$`)

// NewNoteID generates a fresh immutable note identity.
func NewNoteID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "n-" + hex[:8]
}

// IsNoteID reports whether s is in the immutable-token identity form.
func IsNoteID(s string) bool {
	return noteIDRe.MatchString(s)
}
