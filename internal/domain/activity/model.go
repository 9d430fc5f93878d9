package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Kind names what happened to a subject.
type Kind string

const (
	KindRecordUpdated     Kind = "RECORD_UPDATED"
	KindSubmissionCreated Kind = "SUBMISSION_CREATED"
	KindStatusChange      Kind = "STATUS_CHANGE"
	KindTransitionStarted Kind = "TRANSITION_STARTED"
	KindTransitionFailed  Kind = "TRANSITION_FAILED"
	KindTokenCreated      Kind = "TOKEN_CREATED"
	KindTokenRevoked      Kind = "TOKEN_REVOKED"
	KindTokenReactivated  Kind = "TOKEN_REACTIVATED"
	KindTokenDeleted      Kind = "TOKEN_DELETED"
)

// SubjectType identifies the kind of entity an entry is about.
type SubjectType string

const (
	SubjectRecord      SubjectType = "record"
	SubjectSubmission  SubjectType = "submission"
	SubjectAccessToken SubjectType = "access_token"
)

// ActivityEntry is an append-only audit record. Entries are never updated
// or deleted.
type ActivityEntry struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	SubjectType SubjectType     `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	ActorID     string          `json:"actor_id"`
	Kind        Kind            `json:"kind"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
	TraceID     string          `json:"trace_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewEntry builds an entry for subject, serializing snapshot as its payload
// and stamping the trace id of the span active in ctx.
func NewEntry(ctx context.Context, subjectType SubjectType, subjectID, actorID string, kind Kind, snapshot any) (*ActivityEntry, error) {
	var raw json.RawMessage
	if snapshot != nil {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("encoding activity snapshot: %w", err)
		}
		raw = data
	}

	entry := &ActivityEntry{
		ID:          uuid.NewString(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		ActorID:     actorID,
		Kind:        kind,
		Snapshot:    raw,
		CreatedAt:   time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		entry.TraceID = sc.TraceID().String()
	}
	return entry, nil
}
