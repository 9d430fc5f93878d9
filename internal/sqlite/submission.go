package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/repository"
)

// SubmissionRepository implements workflow.SubmissionRepository for SQLite
type SubmissionRepository struct {
	db *DB
}

// NewSubmissionRepository creates a new SubmissionRepository
func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create creates a new submission
func (r *SubmissionRepository) Create(ctx context.Context, tenantID string, sub *workflow.Submission) error {
	pending, err := encodePending(sub.PendingTransition)
	if err != nil {
		return err
	}
	_, err = r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO submissions (
			id, tenant_id, workflow_id, title, status, pending_transition,
			published_at, slug, occ, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, tenantID, sub.WorkflowID, sub.Title, sub.Status, pending,
		sub.PublishedAt, sub.Slug, sub.OCC, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	sub.TenantID = tenantID
	return nil
}

// Get retrieves a submission by ID
func (r *SubmissionRepository) Get(ctx context.Context, tenantID, id string) (*workflow.Submission, error) {
	var sub workflow.Submission
	var pending, slug sql.NullString
	var publishedAt sql.NullTime
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT id, tenant_id, workflow_id, title, status, pending_transition,
		       published_at, slug, occ, created_at, updated_at
		FROM submissions
		WHERE id = ? AND tenant_id = ?`, id, tenantID).Scan(
		&sub.ID, &sub.TenantID, &sub.WorkflowID, &sub.Title, &sub.Status, &pending,
		&publishedAt, &slug, &sub.OCC, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if pending.Valid && pending.String != "" {
		var p workflow.PendingTransition
		if err := json.Unmarshal([]byte(pending.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pending transition: %w", err)
		}
		sub.PendingTransition = &p
	}
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		sub.PublishedAt = &t
	}
	if slug.Valid {
		sub.Slug = &slug.String
	}
	return &sub, nil
}

// Update writes sub only if the stored occ equals expectedOCC.
func (r *SubmissionRepository) Update(ctx context.Context, tenantID string, sub *workflow.Submission, expectedOCC int64) error {
	pending, err := encodePending(sub.PendingTransition)
	if err != nil {
		return err
	}
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE submissions
		SET title = ?, status = ?, pending_transition = ?, published_at = ?,
		    slug = ?, occ = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND occ = ?`,
		sub.Title, sub.Status, pending, sub.PublishedAt,
		sub.Slug, sub.OCC, sub.UpdatedAt,
		sub.ID, tenantID, expectedOCC)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	if err := expectOneRow(res, "submission update"); err != repository.ErrNotFound {
		return err
	}

	var exists bool
	if err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE id = ? AND tenant_id = ?)`, sub.ID, tenantID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check submission existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func encodePending(p *workflow.PendingTransition) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending transition: %w", err)
	}
	return string(data), nil
}
