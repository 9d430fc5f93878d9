package scope

import (
	"context"
	"time"
)

// Wildcard grants every scope within a tenant.
const Wildcard = "*"

// Principal is an authenticated caller acting inside one tenant.
type Principal struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`
}

// IsZero reports whether no caller has been resolved.
func (p Principal) IsZero() bool {
	return p.TenantID == "" && p.ActorID == ""
}

// APIKey describes a stored key. The raw token is never persisted.
type APIKey struct {
	KeyHash     string     `json:"-"`
	TenantID    string     `json:"tenant_id"`
	ActorID     string     `json:"actor_id"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
