// Package storage defines the vault file-system abstraction.
package storage

import "time"

// FileMeta is lightweight metadata for one vault file. Path is always
// vault-root-relative with forward slashes.
type FileMeta struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Checksum string
}

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and forward-slash-separated.
type Provider interface {
	// List returns metadata for every .md file under dir (recursive).
	List(dir string) ([]FileMeta, error)
	// ListTypeDirs returns the names of the vault's immediate subdirectories.
	ListTypeDirs() ([]string, error)
	// ListType returns metadata for .md files directly inside one type dir.
	ListType(typeDir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Stat returns metadata for a single file.
	Stat(path string) (FileMeta, error)
	// Root returns the absolute vault root directory.
	Root() string
}
