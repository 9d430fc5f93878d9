package scope

import "errors"

var (
	// ErrUnauthorized indicates an API key did not resolve to a principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput indicates a malformed grant or key request.
	ErrInvalidInput = errors.New("invalid scope input")
)
