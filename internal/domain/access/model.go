package access

import (
	"encoding/json"
	"time"
)

// Reasons reported for a refused access attempt.
const (
	ReasonRevoked      = "Link has been revoked"
	ReasonExpired      = "Link has expired"
	ReasonLimitReached = "Access limit reached"
)

// Token is a magic link credential. AccessLimit caps the number of
// successful accesses; nil means unlimited.
type Token struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Resource    string     `json:"resource"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Revoked     bool       `json:"revoked"`
	AccessLimit *int       `json:"access_limit,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LogEntry records one access attempt. Entries outlive their token.
type LogEntry struct {
	ID          string          `json:"id"`
	TokenID     string          `json:"token_id"`
	TenantID    string          `json:"tenant_id"`
	AttemptedAt time.Time       `json:"attempted_at"`
	Success     bool            `json:"success"`
	Reason      string          `json:"reason,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// Attempt describes who is presenting the token.
type Attempt struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// Result is the outcome of a validation.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
