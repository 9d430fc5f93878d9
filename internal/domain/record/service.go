package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/repository"
)

var tracer = otel.Tracer("github.com/rpggio/galley/internal/domain/record")

// Service handles record business logic.
type Service struct {
	records    RecordRepository
	activities ActivityRepository
	tx         repository.Transactor
	policy     RetryPolicy
	logger     *slog.Logger
}

// NewService creates a new record service. MaxRetries below one falls back
// to DefaultMaxRetries. A zero Delay retries immediately; a negative Delay
// falls back to DefaultRetryDelay.
func NewService(
	records RecordRepository,
	activities ActivityRepository,
	tx repository.Transactor,
	policy RetryPolicy,
	logger *slog.Logger,
) *Service {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	if policy.Delay < 0 {
		policy.Delay = DefaultRetryDelay
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		records:    records,
		activities: activities,
		tx:         tx,
		policy:     policy,
		logger:     logger,
	}
}

// Create inserts a new record with occ 1.
func (s *Service) Create(ctx context.Context, tenantID string, payload json.RawMessage) (*Record, error) {
	if tenantID == "" || !json.Valid(payload) {
		return nil, ErrInvalidInput
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Payload:   payload,
		OCC:       1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.records.Create(ctx, tenantID, rec); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	return rec, nil
}

// Get retrieves a record by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Record, error) {
	rec, err := s.records.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("loading record: %w", err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.records.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Update runs an optimistic read-modify-write loop against record id.
//
// Each attempt reads the payload and occ outside any transaction, calls
// modify, and for Apply issues one write conditioned on the occ that was
// read. A write that matches no row means another writer got there first;
// the attempt is abandoned and retried after the policy delay. NoChange
// returns the current record without writing. No lock is held between
// attempts.
func (s *Service) Update(ctx context.Context, tenantID, id string, modify Modifier, opts ...UpdateOption) (*Record, error) {
	if id == "" || modify == nil {
		return nil, ErrInvalidInput
	}
	o := updateOptions{policy: s.policy}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "record.Update")
	defer span.End()
	span.SetAttributes(attribute.String("record.id", id), attribute.String("tenant.id", tenantID))

	for attempt := 1; attempt <= o.policy.MaxRetries; attempt++ {
		current, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}

		mutation, err := modify(current.Payload)
		if err != nil {
			return nil, fmt.Errorf("modifying record %s: %w", id, err)
		}

		var payload json.RawMessage
		switch m := mutation.(type) {
		case NoChange:
			span.SetAttributes(attribute.Bool("record.unchanged", true))
			return current, nil
		case Apply:
			payload = m.Payload
		default:
			return nil, fmt.Errorf("%w: unsupported mutation %T", ErrInvalidInput, mutation)
		}
		if !json.Valid(payload) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidInput)
		}

		updated := *current
		updated.Payload = payload
		updated.OCC = current.OCC + 1
		updated.UpdatedAt = time.Now().UTC()

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.records.Update(ctx, tenantID, &updated, current.OCC); err != nil {
				return err
			}
			if o.actorID == "" || s.activities == nil {
				return nil
			}
			entry, err := activity.NewEntry(ctx, activity.SubjectRecord, id, o.actorID, activity.KindRecordUpdated, updatedSnapshot{
				FromOCC: current.OCC,
				ToOCC:   updated.OCC,
				Payload: payload,
			})
			if err != nil {
				return err
			}
			return s.activities.Log(ctx, tenantID, entry)
		})
		switch {
		case err == nil:
			span.SetAttributes(attribute.Int("record.attempts", attempt))
			return &updated, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRecordNotFound
		case !errors.Is(err, repository.ErrConflict):
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("updating record %s: %w", id, err)
		}

		s.logger.Debug("record update lost race",
			"record_id", id,
			"attempt", attempt,
			"max_attempts", o.policy.MaxRetries,
			"read_occ", current.OCC)

		if attempt < o.policy.MaxRetries {
			if err := sleep(ctx, o.policy.Delay); err != nil {
				return nil, err
			}
		}
	}

	span.SetStatus(codes.Error, "occ retries exhausted")
	s.logger.Warn("record update gave up", "record_id", id, "attempts", o.policy.MaxRetries)
	return nil, fmt.Errorf("%w: record %s still contended after %d attempts", ErrConflict, id, o.policy.MaxRetries)
}

type updatedSnapshot struct {
	FromOCC int64           `json:"from_occ"`
	ToOCC   int64           `json:"to_occ"`
	Payload json.RawMessage `json:"payload"`
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
