package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/repository"
)

// RecordRepository implements record.RecordRepository for PostgreSQL
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, tenantID string, rec *record.Record) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO records (id, tenant_id, payload, occ, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, tenantID, string(rec.Payload), rec.OCC, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	rec.TenantID = tenantID
	return nil
}

func (r *RecordRepository) Get(ctx context.Context, tenantID, id string) (*record.Record, error) {
	var rec record.Record
	var payload []byte
	err := r.db.conn(ctx).QueryRow(ctx, `
		SELECT id, tenant_id, payload, occ, created_at, updated_at
		FROM records
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&rec.ID, &rec.TenantID, &payload, &rec.OCC, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt, rec.UpdatedAt = rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()
	return &rec, nil
}

// Update writes rec only if the stored occ equals expectedOCC. A miss is
// reported as ErrConflict when the record exists and ErrNotFound otherwise.
func (r *RecordRepository) Update(ctx context.Context, tenantID string, rec *record.Record, expectedOCC int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE records
		SET payload = $1, occ = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5 AND occ = $6`,
		string(rec.Payload), rec.OCC, rec.UpdatedAt, rec.ID, tenantID, expectedOCC)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if err := expectOneRow(tag, "record update"); err != repository.ErrNotFound {
		return err
	}
	return missReason(ctx, r.db.conn(ctx), "records", tenantID, rec.ID)
}

func (r *RecordRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`DELETE FROM records WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectOneRow(tag, "record delete")
}

// missReason tells a lost OCC race from a missing row. table is one of
// the package's own constants.
func missReason(ctx context.Context, conn executor, table, tenantID, id string) error {
	var exists bool
	err := conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1 AND tenant_id = $2)`, id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}
