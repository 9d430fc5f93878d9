package access

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAccessLimit converts a textual limit from a request body or flag.
// Empty means unlimited. Fractions, zero and negatives are rejected.
func ParseAccessLimit(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: access limit %q must be a whole number", ErrValidation, raw)
	}
	if err := validateLimit(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ValidateCreateRequest checks a token request before anything is stored.
func ValidateCreateRequest(req CreateRequest) error {
	if strings.TrimSpace(req.Resource) == "" {
		return fmt.Errorf("%w: resource is required", ErrValidation)
	}
	return validateLimit(req.AccessLimit)
}

func validateLimit(limit *int) error {
	if limit != nil && *limit <= 0 {
		return fmt.Errorf("%w: access limit must be positive, got %d", ErrValidation, *limit)
	}
	return nil
}
