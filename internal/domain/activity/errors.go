package activity

import "errors"

var (
	// ErrInvalidInput is returned when an entry is missing required fields.
	ErrInvalidInput = errors.New("invalid activity input")
)
