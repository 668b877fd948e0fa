package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-swap update lost to a concurrent writer
	ErrConflict = errors.New("record was modified concurrently")

	// ErrDuplicateSync is returned when a sync record ID is reused
	ErrDuplicateSync = errors.New("sync record already exists")
)
