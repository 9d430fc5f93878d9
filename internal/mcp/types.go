package mcp

import (
	"encoding/json"
	"time"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/workflow"
)

// Tool inputs.

type CreateRecordInput struct {
	Payload any `json:"payload" jsonschema:"JSON object to store"`
}

type GetRecordInput struct {
	ID string `json:"id" jsonschema:"record id"`
}

type SetRecordFieldInput struct {
	ID     string `json:"id" jsonschema:"record id"`
	Path   string `json:"path" jsonschema:"dot separated field path, e.g. author.name"`
	Value  any    `json:"value,omitempty" jsonschema:"new JSON value for the field"`
	Delete bool   `json:"delete,omitempty" jsonschema:"remove the field instead of setting it"`
}

type CreateSubmissionInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"workflow the submission follows"`
	Title      string `json:"title" jsonschema:"submission title; the public slug is derived from it"`
}

type GetSubmissionInput struct {
	ID   string `json:"id,omitempty" jsonschema:"submission id"`
	Slug string `json:"slug,omitempty" jsonschema:"public slug, used when id is empty"`
}

type ListTransitionsInput struct {
	SubmissionID string `json:"submission_id" jsonschema:"submission id"`
}

type TransitionSubmissionInput struct {
	SubmissionID string `json:"submission_id" jsonschema:"submission id"`
	To           string `json:"to" jsonschema:"target state"`
	PublishedAt  string `json:"published_at,omitempty" jsonschema:"RFC 3339 publication date, for transitions that set one"`
}

type CompleteJobInput struct {
	SubmissionID  string `json:"submission_id" jsonschema:"submission id"`
	CorrelationID string `json:"correlation_id" jsonschema:"job id the transition was dispatched with"`
	Succeeded     bool   `json:"succeeded" jsonschema:"whether the job succeeded"`
	Error         string `json:"error,omitempty" jsonschema:"failure description"`
	PublishedAt   string `json:"published_at,omitempty" jsonschema:"RFC 3339 publication date reported by the job"`
}

type CreateAccessTokenInput struct {
	Resource    string `json:"resource" jsonschema:"what the link grants access to"`
	ExpiresAt   string `json:"expires_at,omitempty" jsonschema:"RFC 3339 expiry; omit for no expiry"`
	AccessLimit *int   `json:"access_limit,omitempty" jsonschema:"maximum successful accesses; omit for unlimited"`
}

type TokenIDInput struct {
	ID string `json:"id" jsonschema:"access token id"`
}

type AccessLogInput struct {
	TokenID string `json:"token_id" jsonschema:"access token id"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum entries, newest first"`
}

type ListActivityInput struct {
	SubjectType string `json:"subject_type,omitempty" jsonschema:"record, submission or access_token"`
	SubjectID   string `json:"subject_id,omitempty" jsonschema:"subject id"`
	Kind        string `json:"kind,omitempty" jsonschema:"activity kind, e.g. STATUS_CHANGE"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum entries"`
	Offset      int    `json:"offset,omitempty" jsonschema:"entries to skip"`
}

// Tool outputs. Timestamps are RFC 3339 strings.

type RecordOutput struct {
	ID        string `json:"id"`
	OCC       int64  `json:"occ"`
	Payload   any    `json:"payload"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type PendingOutput struct {
	CorrelationID string `json:"correlation_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	JobType       string `json:"job_type"`
	StartedAt     string `json:"started_at"`
}

type SubmissionOutput struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	Title             string         `json:"title"`
	Status            string         `json:"status"`
	Slug              string         `json:"slug,omitempty"`
	PublishedAt       string         `json:"published_at,omitempty"`
	PendingTransition *PendingOutput `json:"pending_transition,omitempty"`
	OCC               int64          `json:"occ"`
	UpdatedAt         string         `json:"updated_at"`
}

type TransitionOutput struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
	Kind           string   `json:"kind"`
	JobType        string   `json:"job_type,omitempty"`
}

type ListTransitionsOutput struct {
	Transitions []TransitionOutput `json:"transitions"`
}

type TokenOutput struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Revoked     bool   `json:"revoked"`
	AccessLimit *int   `json:"access_limit,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

type AccessResultOutput struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type AccessLogEntryOutput struct {
	AttemptedAt string `json:"attempted_at"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
}

type AccessLogOutput struct {
	Entries []AccessLogEntryOutput `json:"entries"`
}

type ActivityEntryOutput struct {
	ID          string `json:"id"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	ActorID     string `json:"actor_id"`
	Kind        string `json:"kind"`
	Snapshot    any    `json:"snapshot,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type ListActivityOutput struct {
	Entries []ActivityEntryOutput `json:"entries"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func newRecordOutput(rec *record.Record) RecordOutput {
	return RecordOutput{
		ID:        rec.ID,
		OCC:       rec.OCC,
		Payload:   decodeRaw(rec.Payload),
		CreatedAt: formatTime(rec.CreatedAt),
		UpdatedAt: formatTime(rec.UpdatedAt),
	}
}

func newSubmissionOutput(sub *workflow.Submission) SubmissionOutput {
	out := SubmissionOutput{
		ID:          sub.ID,
		WorkflowID:  sub.WorkflowID,
		Title:       sub.Title,
		Status:      string(sub.Status),
		PublishedAt: formatTimePtr(sub.PublishedAt),
		OCC:         sub.OCC,
		UpdatedAt:   formatTime(sub.UpdatedAt),
	}
	if sub.Slug != nil {
		out.Slug = *sub.Slug
	}
	if p := sub.PendingTransition; p != nil {
		out.PendingTransition = &PendingOutput{
			CorrelationID: p.CorrelationID,
			From:          string(p.From),
			To:            string(p.To),
			JobType:       p.JobType,
			StartedAt:     formatTime(p.StartedAt),
		}
	}
	return out
}

func newTransitionOutput(t workflow.Transition) TransitionOutput {
	out := TransitionOutput{From: string(t.From), To: string(t.To), RequiredScopes: t.RequiredScopes, Kind: "simple"}
	if job, ok := t.Action.(workflow.JobBased); ok {
		out.Kind, out.JobType = "job", job.JobType
	}
	return out
}

func newTokenOutput(tok *access.Token) TokenOutput {
	return TokenOutput{
		ID:          tok.ID,
		Resource:    tok.Resource,
		ExpiresAt:   formatTimePtr(tok.ExpiresAt),
		Revoked:     tok.Revoked,
		AccessLimit: tok.AccessLimit,
		CreatedBy:   tok.CreatedBy,
		CreatedAt:   formatTime(tok.CreatedAt),
	}
}

func newActivityEntryOutput(e activity.ActivityEntry) ActivityEntryOutput {
	return ActivityEntryOutput{
		ID:          e.ID,
		SubjectType: string(e.SubjectType),
		SubjectID:   e.SubjectID,
		ActorID:     e.ActorID,
		Kind:        string(e.Kind),
		Snapshot:    decodeRaw(e.Snapshot),
		TraceID:     e.TraceID,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}
