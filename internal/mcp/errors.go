package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps domain errors to MCP error codes. Unknown errors are
// reported as INTERNAL without their text.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, record.ErrRecordNotFound):
		return &APIError{Code: "RECORD_NOT_FOUND", Message: "record not found", RecoveryHint: "Check the record id"}
	case errors.Is(err, workflow.ErrSubmissionNotFound):
		return &APIError{Code: "SUBMISSION_NOT_FOUND", Message: "submission not found", RecoveryHint: "Check the submission id or slug"}
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return &APIError{Code: "WORKFLOW_NOT_FOUND", Message: "workflow not found", RecoveryHint: "Workflows are configured per site"}
	case errors.Is(err, access.ErrTokenNotFound):
		return &APIError{Code: "TOKEN_NOT_FOUND", Message: "access token not found"}
	case errors.Is(err, record.ErrConflict), errors.Is(err, workflow.ErrConflict):
		return &APIError{Code: "CONFLICT", Message: err.Error(), RecoveryHint: "Reload and retry"}
	case errors.Is(err, workflow.ErrForbidden):
		return &APIError{Code: "FORBIDDEN", Message: err.Error(), RecoveryHint: "Ask for the required scope"}
	case errors.Is(err, workflow.ErrInvalidTransition):
		return &APIError{Code: "INVALID_TRANSITION", Message: err.Error(), RecoveryHint: "Call list_transitions"}
	case errors.Is(err, record.ErrInvalidInput),
		errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, access.ErrValidation),
		errors.Is(err, activity.ErrInvalidInput),
		errors.Is(err, scope.ErrInvalidInput),
		errors.Is(err, errInvalidArgument):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, errUnauthorized), errors.Is(err, scope.ErrUnauthorized):
		return &APIError{Code: "UNAUTHORIZED", Message: "unauthorized"}
	default:
		return &APIError{Code: "INTERNAL", Message: "internal error"}
	}
}
