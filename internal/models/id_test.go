package models

import "testing"

func TestNewNoteID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewNoteID()
		if !IsNoteID(id) {
			t.Fatalf("generated id %q does not match the identity form", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestIsNoteID(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"n-abc12345", true},
		{"n-00000000", true},
		{"n-ABC12345", false}, // uppercase hex is not canonical
		{"n-abc1234", false},  // too short
		{"n-abc123456", false},
		{"general/old.md", false},
		{"abc12345", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsNoteID(tt.s); got != tt.want {
			t.Errorf("IsNoteID(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
