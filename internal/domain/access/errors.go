package access

import "errors"

var (
	// ErrTokenNotFound indicates the token doesn't exist.
	ErrTokenNotFound = errors.New("access token not found")
	// ErrValidation indicates a malformed token request.
	ErrValidation = errors.New("invalid access token request")
)
