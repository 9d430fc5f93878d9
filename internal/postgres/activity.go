package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/galley/internal/domain/activity"
)

// ActivityRepository implements activity.Repository for PostgreSQL
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log inserts a new activity entry, joining the caller's transaction if
// there is one.
func (r *ActivityRepository) Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO activity_log (
			id, tenant_id, subject_type, subject_id, actor_id,
			kind, snapshot, trace_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, tenantID, string(entry.SubjectType), entry.SubjectID, entry.ActorID,
		string(entry.Kind), nullJSON(entry.Snapshot), entry.TraceID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	entry.TenantID = tenantID
	return nil
}

// List returns activity entries matching the given filters, newest first
func (r *ActivityRepository) List(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := []any{tenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `
		SELECT id, tenant_id, subject_type, subject_id, actor_id,
		       kind, snapshot, COALESCE(trace_id, ''), created_at
		FROM activity_log
		WHERE tenant_id = $1`
	var conditions []string
	if opts.SubjectType != nil {
		conditions = append(conditions, "subject_type = "+arg(string(*opts.SubjectType)))
	}
	if opts.SubjectID != nil {
		conditions = append(conditions, "subject_id = "+arg(*opts.SubjectID))
	}
	if opts.Kind != nil {
		conditions = append(conditions, "kind = "+arg(string(*opts.Kind)))
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET " + arg(opts.Offset)
		}
	}

	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []activity.ActivityEntry
	for rows.Next() {
		var entry activity.ActivityEntry
		var subjectType, kind string
		var snapshot []byte
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &subjectType, &entry.SubjectID, &entry.ActorID,
			&kind, &snapshot, &entry.TraceID, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entry.SubjectType = activity.SubjectType(subjectType)
		entry.Kind = activity.Kind(kind)
		if len(snapshot) > 0 {
			entry.Snapshot = json.RawMessage(snapshot)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return entries, nil
}
