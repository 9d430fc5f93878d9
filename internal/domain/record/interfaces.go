package record

import (
	"context"

	"github.com/rpggio/galley/internal/domain/activity"
)

// RecordRepository provides persistence for records.
type RecordRepository interface {
	Create(ctx context.Context, tenantID string, rec *Record) error
	Get(ctx context.Context, tenantID, id string) (*Record, error)
	// Update writes rec only if the stored occ still equals expectedOCC.
	// It returns repository.ErrConflict when it does not.
	Update(ctx context.Context, tenantID string, rec *Record, expectedOCC int64) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ActivityRepository logs record activities.
type ActivityRepository interface {
	Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error
}
