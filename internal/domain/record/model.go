package record

import (
	"encoding/json"
	"time"
)

// Record is a JSON document guarded by an optimistic concurrency counter.
// OCC starts at 1 and every successful write increments it by exactly one.
type Record struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Payload   json.RawMessage `json:"payload"`
	OCC       int64           `json:"occ"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Mutation is what a Modifier decides to do with the payload it was given.
// It is either Apply or NoChange.
type Mutation interface {
	isMutation()
}

// Apply replaces the payload.
type Apply struct {
	Payload json.RawMessage
}

// NoChange leaves the record untouched. No write is issued.
type NoChange struct{}

func (Apply) isMutation()    {}
func (NoChange) isMutation() {}

// Modifier computes a mutation from the current payload. It may be invoked
// once per attempt, so it must not have side effects.
type Modifier func(current json.RawMessage) (Mutation, error)
