package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when something is not found
	ErrNotFound = errors.New("item not found")
	ErrConflict = errors.New("item already exists")
	// ErrMalformed is returned for request content that is not a usable record.
	ErrMalformed = errors.New("malformed record")
	// ErrInvalidDocument is returned when a stored collection document cannot be
	// parsed. It also matches ErrMalformed.
	ErrInvalidDocument = fmt.Errorf("invalid collection document: %w", ErrMalformed)
	ErrIOFailure       = errors.New("document io failure")
)
