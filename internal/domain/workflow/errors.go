package workflow

import "errors"

var (
	// ErrSubmissionNotFound indicates the submission doesn't exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrWorkflowNotFound indicates no workflow with that id exists for the tenant.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrInvalidTransition indicates the requested edge is not declared, or
	// a job-backed transition is already in flight.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden indicates the actor lacks a required scope.
	ErrForbidden = errors.New("missing required scope")
	// ErrConflict indicates the submission kept changing underneath the write.
	ErrConflict = errors.New("submission update conflict")
	// ErrInvalidWorkflow indicates a malformed workflow definition.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
	// ErrInvalidInput indicates invalid input for workflow operations.
	ErrInvalidInput = errors.New("invalid workflow input")
)
