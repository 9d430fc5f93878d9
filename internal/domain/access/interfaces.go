package access

import (
	"context"

	"github.com/rpggio/galley/internal/domain/activity"
)

// TokenRepository provides persistence for tokens.
type TokenRepository interface {
	Create(ctx context.Context, tok *Token) error
	Get(ctx context.Context, tenantID, id string) (*Token, error)
	// LockForAccess loads a token and holds an exclusive row lock on it
	// until the enclosing transaction ends. It fails with
	// repository.ErrNoTransaction outside a transaction.
	LockForAccess(ctx context.Context, id string) (*Token, error)
	SetRevoked(ctx context.Context, tenantID, id string, revoked bool) error
	Delete(ctx context.Context, tenantID, id string) error
}

// LogRepository provides persistence for access log entries.
type LogRepository interface {
	Append(ctx context.Context, entry *LogEntry) error
	CountSuccessful(ctx context.Context, tokenID string) (int, error)
	List(ctx context.Context, tenantID, tokenID string, limit int) ([]LogEntry, error)
}

// ActivityRepository logs token lifecycle activities.
type ActivityRepository interface {
	Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error
}
