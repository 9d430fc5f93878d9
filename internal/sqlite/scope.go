package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
)

// GrantRepository implements scope.GrantRepository for SQLite
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new GrantRepository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Grant records a scope grant; repeating it is a no-op
func (r *GrantRepository) Grant(ctx context.Context, tenantID, actorID, s string) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO scope_grants (tenant_id, actor_id, scope, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, actor_id, scope) DO NOTHING`,
		tenantID, actorID, s, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to grant scope: %w", err)
	}
	return nil
}

// Revoke removes a scope grant
func (r *GrantRepository) Revoke(ctx context.Context, tenantID, actorID, s string) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM scope_grants WHERE tenant_id = ? AND actor_id = ? AND scope = ?`, tenantID, actorID, s)
	if err != nil {
		return fmt.Errorf("failed to revoke scope: %w", err)
	}
	return expectOneRow(res, "scope revoke")
}

// ListGrants lists the scopes held by an actor
func (r *GrantRepository) ListGrants(ctx context.Context, tenantID, actorID string) ([]string, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT scope FROM scope_grants WHERE tenant_id = ? AND actor_id = ? ORDER BY scope`, tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// APIKeyRepository implements scope.KeyRepository for SQLite
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Add stores a hashed key
func (r *APIKeyRepository) Add(ctx context.Context, key *scope.APIKey) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, tenant_id, actor_id, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		key.KeyHash, key.TenantID, key.ActorID, key.Description, key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

// Resolve looks up a key by hash and stamps last_used
func (r *APIKeyRepository) Resolve(ctx context.Context, keyHash string) (*scope.APIKey, error) {
	var key scope.APIKey
	var lastUsed sql.NullTime
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT key_hash, tenant_id, actor_id, description, created_at, last_used
		FROM api_keys WHERE key_hash = ?`, keyHash).Scan(
		&key.KeyHash, &key.TenantID, &key.ActorID, &key.Description, &key.CreatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}
	if lastUsed.Valid {
		key.LastUsed = &lastUsed.Time
	}

	if _, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, time.Now().UTC(), keyHash); err != nil {
		return nil, fmt.Errorf("failed to update api key usage: %w", err)
	}
	return &key, nil
}
