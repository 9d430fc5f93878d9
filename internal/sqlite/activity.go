package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/galley/internal/domain/activity"
)

// ActivityRepository implements activity.Repository for SQLite
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
	var snapshot any
	if len(entry.Snapshot) > 0 {
		snapshot = string(entry.Snapshot)
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO activity_log (
			id, tenant_id, subject_type, subject_id, actor_id,
			kind, snapshot, trace_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, tenantID, entry.SubjectType, entry.SubjectID, entry.ActorID,
		entry.Kind, snapshot, entry.TraceID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	entry.TenantID = tenantID
	return nil
}

// List returns activity entries matching the given filters, newest first
func (r *ActivityRepository) List(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	query := `
		SELECT id, tenant_id, subject_type, subject_id, actor_id,
		       kind, snapshot, trace_id, created_at
		FROM activity_log
		WHERE tenant_id = ?`
	args := []any{tenantID}

	var conditions []string
	if opts.SubjectType != nil {
		conditions = append(conditions, "subject_type = ?")
		args = append(args, *opts.SubjectType)
	}
	if opts.SubjectID != nil {
		conditions = append(conditions, "subject_id = ?")
		args = append(args, *opts.SubjectID)
	}
	if opts.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, *opts.Kind)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []activity.ActivityEntry
	for rows.Next() {
		var entry activity.ActivityEntry
		var snapshot, traceID sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.SubjectType, &entry.SubjectID, &entry.ActorID,
			&entry.Kind, &snapshot, &traceID, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if snapshot.Valid {
			entry.Snapshot = json.RawMessage(snapshot.String)
		}
		entry.TraceID = traceID.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return entries, nil
}
