package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/repository"
)

const tokenColumns = `id, tenant_id, resource, expires_at, revoked, access_limit, created_by, created_at`

// TokenRepository implements access.TokenRepository for PostgreSQL
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, tok *access.Token) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO access_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tok.ID, tok.TenantID, tok.Resource, tok.ExpiresAt, tok.Revoked, tok.AccessLimit, tok.CreatedBy, tok.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		if isCheckViolation(err) {
			return repository.ErrInvalidInput
		}
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Get(ctx context.Context, tenantID, id string) (*access.Token, error) {
	row := r.db.conn(ctx).QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanToken(row)
}

// LockForAccess reads the token with FOR UPDATE, holding its row lock
// until the enclosing transaction ends.
func (r *TokenRepository) LockForAccess(ctx context.Context, id string) (*access.Token, error) {
	if !inTx(ctx) {
		return nil, repository.ErrNoTransaction
	}
	row := r.db.conn(ctx).QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE id = $1 FOR UPDATE`, id)
	return scanToken(row)
}

func (r *TokenRepository) SetRevoked(ctx context.Context, tenantID, id string, revoked bool) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`UPDATE access_tokens SET revoked = $1 WHERE id = $2 AND tenant_id = $3`, revoked, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectOneRow(tag, "token update")
}

// Delete removes a token. Its access log rows are kept.
func (r *TokenRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`DELETE FROM access_tokens WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return expectOneRow(tag, "token delete")
}

func scanToken(row pgx.Row) (*access.Token, error) {
	var tok access.Token
	err := row.Scan(&tok.ID, &tok.TenantID, &tok.Resource, &tok.ExpiresAt, &tok.Revoked, &tok.AccessLimit, &tok.CreatedBy, &tok.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if tok.ExpiresAt != nil {
		t := tok.ExpiresAt.UTC()
		tok.ExpiresAt = &t
	}
	tok.CreatedAt = tok.CreatedAt.UTC()
	return &tok, nil
}

// AccessLogRepository implements access.LogRepository for PostgreSQL
type AccessLogRepository struct {
	db *DB
}

// NewAccessLogRepository creates a new AccessLogRepository
func NewAccessLogRepository(db *DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

func (r *AccessLogRepository) Append(ctx context.Context, entry *access.LogEntry) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO access_log (id, token_id, tenant_id, attempted_at, success, reason, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.TokenID, entry.TenantID, entry.AttemptedAt, entry.Success, entry.Reason, nullJSON(entry.Context))
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

func (r *AccessLogRepository) CountSuccessful(ctx context.Context, tokenID string) (int, error) {
	var n int
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM access_log WHERE token_id = $1 AND success`, tokenID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count access log: %w", err)
	}
	return n, nil
}

// List returns attempts for a token, newest first
func (r *AccessLogRepository) List(ctx context.Context, tenantID, tokenID string, limit int) ([]access.LogEntry, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT id, token_id, tenant_id, attempted_at, success, reason, context
		FROM access_log
		WHERE tenant_id = $1 AND token_id = $2
		ORDER BY attempted_at DESC, id DESC
		LIMIT $3`, tenantID, tokenID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", err)
	}
	defer rows.Close()

	var entries []access.LogEntry
	for rows.Next() {
		var e access.LogEntry
		var attemptCtx []byte
		if err := rows.Scan(&e.ID, &e.TokenID, &e.TenantID, &e.AttemptedAt, &e.Success, &e.Reason, &attemptCtx); err != nil {
			return nil, fmt.Errorf("failed to scan access log entry: %w", err)
		}
		if len(attemptCtx) > 0 {
			e.Context = json.RawMessage(attemptCtx)
		}
		e.AttemptedAt = e.AttemptedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access log rows: %w", err)
	}
	return entries, nil
}
