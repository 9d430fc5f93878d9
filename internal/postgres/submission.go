package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/repository"
)

const maxSlugCandidates = 100

// SubmissionRepository implements workflow.SubmissionRepository for PostgreSQL
type SubmissionRepository struct {
	db *DB
}

// NewSubmissionRepository creates a new SubmissionRepository
func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, tenantID string, sub *workflow.Submission) error {
	pending, err := encodePending(sub.PendingTransition)
	if err != nil {
		return err
	}
	_, err = r.db.conn(ctx).Exec(ctx, `
		INSERT INTO submissions (
			id, tenant_id, workflow_id, title, status, pending_transition,
			published_at, slug, occ, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
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

func (r *SubmissionRepository) Get(ctx context.Context, tenantID, id string) (*workflow.Submission, error) {
	var sub workflow.Submission
	var pending []byte
	err := r.db.conn(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, workflow_id, title, status, pending_transition,
		       published_at, slug, occ, created_at, updated_at
		FROM submissions
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&sub.ID, &sub.TenantID, &sub.WorkflowID, &sub.Title, &sub.Status, &pending,
		&sub.PublishedAt, &sub.Slug, &sub.OCC, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if len(pending) > 0 {
		var p workflow.PendingTransition
		if err := json.Unmarshal(pending, &p); err != nil {
			return nil, fmt.Errorf("failed to decode pending transition: %w", err)
		}
		sub.PendingTransition = &p
	}
	if sub.PublishedAt != nil {
		t := sub.PublishedAt.UTC()
		sub.PublishedAt = &t
	}
	sub.CreatedAt, sub.UpdatedAt = sub.CreatedAt.UTC(), sub.UpdatedAt.UTC()
	return &sub, nil
}

// Update writes sub only if the stored occ equals expectedOCC.
func (r *SubmissionRepository) Update(ctx context.Context, tenantID string, sub *workflow.Submission, expectedOCC int64) error {
	pending, err := encodePending(sub.PendingTransition)
	if err != nil {
		return err
	}
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE submissions
		SET title = $1, status = $2, pending_transition = $3, published_at = $4,
		    slug = $5, occ = $6, updated_at = $7
		WHERE id = $8 AND tenant_id = $9 AND occ = $10`,
		sub.Title, sub.Status, pending, sub.PublishedAt,
		sub.Slug, sub.OCC, sub.UpdatedAt,
		sub.ID, tenantID, expectedOCC)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	if err := expectOneRow(tag, "submission update"); err != repository.ErrNotFound {
		return err
	}
	return missReason(ctx, r.db.conn(ctx), "submissions", tenantID, sub.ID)
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

// SlugRepository implements workflow.SlugRepository for PostgreSQL
type SlugRepository struct {
	db *DB
}

// NewSlugRepository creates a new SlugRepository
func NewSlugRepository(db *DB) *SlugRepository {
	return &SlugRepository{db: db}
}

// Claim reserves base, or base-2, base-3... for submissionID. Inserts skip
// taken slugs with ON CONFLICT so a collision never aborts the caller's
// transaction.
func (r *SlugRepository) Claim(ctx context.Context, tenantID, submissionID, base string) (string, error) {
	conn := r.db.conn(ctx)
	for i := 1; i <= maxSlugCandidates; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		tag, err := conn.Exec(ctx, `
			INSERT INTO slugs (tenant_id, slug, submission_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, slug) DO NOTHING`,
			tenantID, candidate, submissionID, time.Now().UTC())
		if err != nil {
			return "", fmt.Errorf("failed to claim slug: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return candidate, nil
		}

		var owner string
		if err := conn.QueryRow(ctx,
			`SELECT submission_id FROM slugs WHERE tenant_id = $1 AND slug = $2`, tenantID, candidate).Scan(&owner); err != nil {
			return "", fmt.Errorf("failed to look up slug: %w", notFound(err))
		}
		if owner == submissionID {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d candidates", base, maxSlugCandidates)
}

// Resolve returns the submission a slug points to.
func (r *SlugRepository) Resolve(ctx context.Context, tenantID, slug string) (string, error) {
	var id string
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT submission_id FROM slugs WHERE tenant_id = $1 AND slug = $2`, tenantID, slug).Scan(&id)
	if err != nil {
		return "", notFound(err)
	}
	return id, nil
}
