package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique-key collision on insert.
	ErrConflict = errors.New("conflict")
)
