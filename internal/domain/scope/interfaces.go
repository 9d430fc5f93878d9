package scope

import "context"

// Checker decides whether a principal holds scopes within a tenant.
type Checker interface {
	HasScopes(ctx context.Context, principal Principal, tenantID string, scopes []string) (bool, error)
}

// GrantRepository persists scope grants.
type GrantRepository interface {
	Grant(ctx context.Context, tenantID, actorID, scope string) error
	Revoke(ctx context.Context, tenantID, actorID, scope string) error
	ListGrants(ctx context.Context, tenantID, actorID string) ([]string, error)
}

// KeyRepository persists hashed API keys.
type KeyRepository interface {
	Add(ctx context.Context, key *APIKey) error
	// Resolve looks up a key by hash and stamps its last-used time.
	Resolve(ctx context.Context, keyHash string) (*APIKey, error)
}
