package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
)

// GrantRepository implements scope.GrantRepository for PostgreSQL
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new GrantRepository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) Grant(ctx context.Context, tenantID, actorID, s string) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO scope_grants (tenant_id, actor_id, scope, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, actor_id, scope) DO NOTHING`,
		tenantID, actorID, s, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to grant scope: %w", err)
	}
	return nil
}

func (r *GrantRepository) Revoke(ctx context.Context, tenantID, actorID, s string) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`DELETE FROM scope_grants WHERE tenant_id = $1 AND actor_id = $2 AND scope = $3`, tenantID, actorID, s)
	if err != nil {
		return fmt.Errorf("failed to revoke scope: %w", err)
	}
	return expectOneRow(tag, "scope revoke")
}

func (r *GrantRepository) ListGrants(ctx context.Context, tenantID, actorID string) ([]string, error) {
	rows, err := r.db.conn(ctx).Query(ctx,
		`SELECT scope FROM scope_grants WHERE tenant_id = $1 AND actor_id = $2 ORDER BY scope`, tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	scopes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan grants: %w", err)
	}
	return scopes, nil
}

// APIKeyRepository implements scope.KeyRepository for PostgreSQL
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Add(ctx context.Context, key *scope.APIKey) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO api_keys (key_hash, tenant_id, actor_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		key.KeyHash, key.TenantID, key.ActorID, key.Description, key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

// Resolve looks up a key by hash and stamps last_used, returning the
// previous value.
func (r *APIKeyRepository) Resolve(ctx context.Context, keyHash string) (*scope.APIKey, error) {
	var key scope.APIKey
	err := r.db.conn(ctx).QueryRow(ctx, `
		UPDATE api_keys k
		SET last_used = $2
		FROM (SELECT key_hash, last_used FROM api_keys WHERE key_hash = $1) prev
		WHERE k.key_hash = prev.key_hash
		RETURNING k.key_hash, k.tenant_id, k.actor_id, k.description, k.created_at, prev.last_used`,
		keyHash, time.Now().UTC()).Scan(
		&key.KeyHash, &key.TenantID, &key.ActorID, &key.Description, &key.CreatedAt, &key.LastUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}
	return &key, nil
}
