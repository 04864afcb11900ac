package repository

import "errors"

// Sentinel kinds for analysis store errors.
var (
	ErrNotFound          = errors.New("analysis not found")
	ErrDuplicateID       = errors.New("analysis id already exists")
	ErrInvalidTransition = errors.New("invalid analysis status transition")
)
