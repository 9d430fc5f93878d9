package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const maxSlugCandidates = 100

// SlugRepository implements workflow.SlugRepository for SQLite
type SlugRepository struct {
	db *DB
}

// NewSlugRepository creates a new SlugRepository
func NewSlugRepository(db *DB) *SlugRepository {
	return &SlugRepository{db: db}
}

// Claim reserves base, or base-2, base-3... for submissionID.
func (r *SlugRepository) Claim(ctx context.Context, tenantID, submissionID, base string) (string, error) {
	for i := 1; i <= maxSlugCandidates; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		var owner string
		err := r.db.conn(ctx).QueryRowContext(ctx,
			`SELECT submission_id FROM slugs WHERE tenant_id = ? AND slug = ?`, tenantID, candidate).Scan(&owner)
		switch {
		case err == nil && owner == submissionID:
			return candidate, nil
		case err == nil:
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("failed to look up slug: %w", err)
		}

		_, err = r.db.conn(ctx).ExecContext(ctx,
			`INSERT INTO slugs (tenant_id, slug, submission_id, created_at) VALUES (?, ?, ?, ?)`,
			tenantID, candidate, submissionID, time.Now().UTC())
		if err == nil {
			return candidate, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("failed to claim slug: %w", err)
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d candidates", base, maxSlugCandidates)
}

// Resolve returns the submission a slug points to.
func (r *SlugRepository) Resolve(ctx context.Context, tenantID, slug string) (string, error) {
	var id string
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT submission_id FROM slugs WHERE tenant_id = ? AND slug = ?`, tenantID, slug).Scan(&id)
	if err != nil {
		return "", notFound(err)
	}
	return id, nil
}
