package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/repository"
)

// RecordRepository implements record.RecordRepository for SQLite
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create creates a new record
func (r *RecordRepository) Create(ctx context.Context, tenantID string, rec *record.Record) error {
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO records (id, tenant_id, payload, occ, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
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

// Get retrieves a record by ID
func (r *RecordRepository) Get(ctx context.Context, tenantID, id string) (*record.Record, error) {
	var rec record.Record
	var payload string
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		SELECT id, tenant_id, payload, occ, created_at, updated_at
		FROM records
		WHERE id = ? AND tenant_id = ?`, id, tenantID).Scan(
		&rec.ID, &rec.TenantID, &payload, &rec.OCC, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// Update writes rec only if the stored occ equals expectedOCC. A miss is
// reported as ErrConflict when the record exists and ErrNotFound otherwise.
func (r *RecordRepository) Update(ctx context.Context, tenantID string, rec *record.Record, expectedOCC int64) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE records
		SET payload = ?, occ = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND occ = ?`,
		string(rec.Payload), rec.OCC, rec.UpdatedAt, rec.ID, tenantID, expectedOCC)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if err := expectOneRow(res, "record update"); err != repository.ErrNotFound {
		return err
	}
	return r.missReason(ctx, tenantID, rec.ID)
}

func (r *RecordRepository) missReason(ctx context.Context, tenantID, id string) error {
	var exists bool
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE id = ? AND tenant_id = ?)`, id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check record existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// Delete removes a record
func (r *RecordRepository) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectOneRow(res, "record delete")
}
