package workflow

import "time"

// PendingTransition is the stashed job-backed transition awaiting its
// completion callback.
type PendingTransition struct {
	CorrelationID  string         `json:"correlation_id"`
	From           State          `json:"from"`
	To             State          `json:"to"`
	RequiredScopes []string       `json:"required_scopes,omitempty"`
	JobType        string         `json:"job_type"`
	Options        map[string]any `json:"options,omitempty"`
	ActorID        string         `json:"actor_id"`
	StartedAt      time.Time      `json:"started_at"`
}

// Submission is a record whose status is governed by a workflow.
type Submission struct {
	ID                string             `json:"id"`
	TenantID          string             `json:"tenant_id"`
	WorkflowID        string             `json:"workflow_id"`
	Title             string             `json:"title"`
	Status            State              `json:"status"`
	PendingTransition *PendingTransition `json:"pending_transition,omitempty"`
	PublishedAt       *time.Time         `json:"published_at,omitempty"`
	Slug              *string            `json:"slug,omitempty"`
	OCC               int64              `json:"occ"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
