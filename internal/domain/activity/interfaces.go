package activity

import "context"

// Writer appends activity entries. Implementations join the transaction
// carried in ctx, so an entry commits or rolls back with the change it
// describes.
type Writer interface {
	Log(ctx context.Context, tenantID string, entry *ActivityEntry) error
}

// Reader lists a tenant's activity, newest first.
type Reader interface {
	List(ctx context.Context, tenantID string, opts ListActivityOptions) ([]ActivityEntry, error)
}

// Repository is the full activity store.
type Repository interface {
	Writer
	Reader
}
