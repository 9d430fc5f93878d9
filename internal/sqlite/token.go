package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/repository"
)

const tokenColumns = `id, tenant_id, resource, expires_at, revoked, access_limit, created_by, created_at`

// TokenRepository implements access.TokenRepository for SQLite
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create creates a new token
func (r *TokenRepository) Create(ctx context.Context, tok *access.Token) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO access_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

// Get retrieves a token by ID
func (r *TokenRepository) Get(ctx context.Context, tenantID, id string) (*access.Token, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE id = ? AND tenant_id = ?`, id, tenantID)
	return scanToken(row)
}

// LockForAccess takes the database write lock by touching the token row,
// then reads it. SQLite has no row locks; with immediate transactions the
// write lock serializes every competing validation until commit.
func (r *TokenRepository) LockForAccess(ctx context.Context, id string) (*access.Token, error) {
	if !inTx(ctx) {
		return nil, repository.ErrNoTransaction
	}
	res, err := r.db.conn(ctx).ExecContext(ctx, `UPDATE access_tokens SET id = id WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock token: %w", err)
	}
	if err := expectOneRow(res, "token lock"); err != nil {
		return nil, err
	}
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// SetRevoked flips the revoked flag
func (r *TokenRepository) SetRevoked(ctx context.Context, tenantID, id string, revoked bool) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE access_tokens SET revoked = ? WHERE id = ? AND tenant_id = ?`, revoked, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectOneRow(res, "token update")
}

// Delete removes a token. Its access log rows are kept.
func (r *TokenRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM access_tokens WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return expectOneRow(res, "token delete")
}

func scanToken(row *sql.Row) (*access.Token, error) {
	var tok access.Token
	var expiresAt sql.NullTime
	var limit sql.NullInt64
	err := row.Scan(&tok.ID, &tok.TenantID, &tok.Resource, &expiresAt, &tok.Revoked, &limit, &tok.CreatedBy, &tok.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		tok.ExpiresAt = &t
	}
	if limit.Valid {
		n := int(limit.Int64)
		tok.AccessLimit = &n
	}
	return &tok, nil
}

// AccessLogRepository implements access.LogRepository for SQLite
type AccessLogRepository struct {
	db *DB
}

// NewAccessLogRepository creates a new AccessLogRepository
func NewAccessLogRepository(db *DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// Append inserts one access attempt
func (r *AccessLogRepository) Append(ctx context.Context, entry *access.LogEntry) error {
	var attemptCtx any
	if len(entry.Context) > 0 {
		attemptCtx = string(entry.Context)
	}
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO access_log (id, token_id, tenant_id, attempted_at, success, reason, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TokenID, entry.TenantID, entry.AttemptedAt, entry.Success, entry.Reason, attemptCtx)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

// CountSuccessful counts successful attempts for a token
func (r *AccessLogRepository) CountSuccessful(ctx context.Context, tokenID string) (int, error) {
	var n int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_log WHERE token_id = ? AND success = 1`, tokenID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count access log: %w", err)
	}
	return n, nil
}

// List returns attempts for a token, newest first
func (r *AccessLogRepository) List(ctx context.Context, tenantID, tokenID string, limit int) ([]access.LogEntry, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `
		SELECT id, token_id, tenant_id, attempted_at, success, reason, context
		FROM access_log
		WHERE tenant_id = ? AND token_id = ?
		ORDER BY attempted_at DESC, rowid DESC
		LIMIT ?`, tenantID, tokenID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", err)
	}
	defer rows.Close()

	var entries []access.LogEntry
	for rows.Next() {
		var e access.LogEntry
		var attemptCtx sql.NullString
		if err := rows.Scan(&e.ID, &e.TokenID, &e.TenantID, &e.AttemptedAt, &e.Success, &e.Reason, &attemptCtx); err != nil {
			return nil, fmt.Errorf("failed to scan access log entry: %w", err)
		}
		if attemptCtx.Valid {
			e.Context = json.RawMessage(attemptCtx.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access log rows: %w", err)
	}
	return entries, nil
}
