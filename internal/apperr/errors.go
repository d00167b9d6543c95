package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidQuery marks raw search queries rejected before execution.
	ErrInvalidQuery = errors.New("invalid query")
)
