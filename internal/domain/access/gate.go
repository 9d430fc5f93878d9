package access

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

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
)

var tracer = otel.Tracer("github.com/rpggio/galley/internal/domain/access")

// Gate validates magic link tokens and manages their lifecycle.
type Gate struct {
	tokens     TokenRepository
	log        LogRepository
	activities ActivityRepository
	tx         repository.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

// NewGate creates a gate.
func NewGate(tokens TokenRepository, log LogRepository, activities ActivityRepository, tx repository.Transactor, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		tokens:     tokens,
		log:        log,
		activities: activities,
		tx:         tx,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest describes a new token.
type CreateRequest struct {
	Resource    string
	ExpiresAt   *time.Time
	AccessLimit *int
}

// ValidateAndLogAccess checks a token and records the attempt, atomically.
//
// The token row stays locked from the read until commit, so concurrent
// attempts against a limited token are serialized and at most AccessLimit of
// them succeed. Checks run in order: revoked, expired, limit. Every call that
// finds the token writes exactly one log entry, successful or not.
func (g *Gate) ValidateAndLogAccess(ctx context.Context, tokenID string, attempt Attempt) (Result, error) {
	if tokenID == "" {
		return Result{}, ErrTokenNotFound
	}
	ctx, span := tracer.Start(ctx, "access.ValidateAndLogAccess")
	defer span.End()
	span.SetAttributes(attribute.String("token.id", tokenID))

	attemptJSON, err := json.Marshal(attempt)
	if err != nil {
		return Result{}, fmt.Errorf("encoding attempt context: %w", err)
	}

	var result Result
	err = g.tx.WithinTx(ctx, func(ctx context.Context) error {
		tok, err := g.tokens.LockForAccess(ctx, tokenID)
		if err != nil {
			return err
		}
		now := g.now()
		result, err = g.evaluate(ctx, tok, now)
		if err != nil {
			return err
		}
		return g.log.Append(ctx, &LogEntry{
			ID:          uuid.NewString(),
			TokenID:     tok.ID,
			TenantID:    tok.TenantID,
			AttemptedAt: now,
			Success:     result.Valid,
			Reason:      result.Reason,
			Context:     attemptJSON,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrTokenNotFound
		}
		return Result{}, fmt.Errorf("validating token %s: %w", tokenID, err)
	}

	span.SetAttributes(attribute.Bool("token.valid", result.Valid))
	if !result.Valid {
		g.logger.Info("access refused", "token_id", tokenID, "reason", result.Reason)
	}
	return result, nil
}

func (g *Gate) evaluate(ctx context.Context, tok *Token, now time.Time) (Result, error) {
	if tok.Revoked {
		return Result{Reason: ReasonRevoked}, nil
	}
	if tok.ExpiresAt != nil && tok.ExpiresAt.Before(now) {
		return Result{Reason: ReasonExpired}, nil
	}
	if tok.AccessLimit != nil {
		used, err := g.log.CountSuccessful(ctx, tok.ID)
		if err != nil {
			return Result{}, fmt.Errorf("counting accesses: %w", err)
		}
		if used >= *tok.AccessLimit {
			return Result{Reason: ReasonLimitReached}, nil
		}
	}
	return Result{Valid: true}, nil
}

// Create issues a new token for actor's tenant.
func (g *Gate) Create(ctx context.Context, actor scope.Principal, req CreateRequest) (*Token, error) {
	if err := ValidateCreateRequest(req); err != nil {
		return nil, err
	}
	tok := &Token{
		ID:          uuid.NewString(),
		TenantID:    actor.TenantID,
		Resource:    req.Resource,
		AccessLimit: req.AccessLimit,
		CreatedBy:   actor.ActorID,
		CreatedAt:   g.now(),
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		tok.ExpiresAt = &exp
	}

	err := g.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := g.tokens.Create(ctx, tok); err != nil {
			return fmt.Errorf("creating token: %w", err)
		}
		return g.logActivity(ctx, actor, tok, activity.KindTokenCreated)
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Get retrieves a token by ID.
func (g *Gate) Get(ctx context.Context, tenantID, id string) (*Token, error) {
	tok, err := g.tokens.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("loading token: %w", err)
	}
	return tok, nil
}

// Revoke disables a token. Revoking a revoked token changes nothing.
func (g *Gate) Revoke(ctx context.Context, actor scope.Principal, id string) (*Token, error) {
	return g.setRevoked(ctx, actor, id, true)
}

// Reactivate re-enables a revoked token. Reactivating an active token
// changes nothing.
func (g *Gate) Reactivate(ctx context.Context, actor scope.Principal, id string) (*Token, error) {
	return g.setRevoked(ctx, actor, id, false)
}

func (g *Gate) setRevoked(ctx context.Context, actor scope.Principal, id string, revoked bool) (*Token, error) {
	var tok *Token
	err := g.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		tok, err = g.tokens.Get(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if tok.Revoked == revoked {
			return nil
		}
		if err := g.tokens.SetRevoked(ctx, actor.TenantID, id, revoked); err != nil {
			return err
		}
		tok.Revoked = revoked
		kind := activity.KindTokenReactivated
		if revoked {
			kind = activity.KindTokenRevoked
		}
		return g.logActivity(ctx, actor, tok, kind)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("updating token %s: %w", id, err)
	}
	return tok, nil
}

// Delete removes a token. Its access log is kept.
func (g *Gate) Delete(ctx context.Context, actor scope.Principal, id string) error {
	err := g.tx.WithinTx(ctx, func(ctx context.Context) error {
		tok, err := g.tokens.Get(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if err := g.tokens.Delete(ctx, actor.TenantID, id); err != nil {
			return err
		}
		return g.logActivity(ctx, actor, tok, activity.KindTokenDeleted)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("deleting token %s: %w", id, err)
	}
	return nil
}

// AccessLog lists recorded attempts for a token, newest first. It works for
// deleted tokens too.
func (g *Gate) AccessLog(ctx context.Context, tenantID, tokenID string, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	entries, err := g.log.List(ctx, tenantID, tokenID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing access log: %w", err)
	}
	return entries, nil
}

func (g *Gate) logActivity(ctx context.Context, actor scope.Principal, tok *Token, kind activity.Kind) error {
	if g.activities == nil {
		return nil
	}
	entry, err := activity.NewEntry(ctx, activity.SubjectAccessToken, tok.ID, actor.ActorID, kind, tok)
	if err != nil {
		return err
	}
	return g.activities.Log(ctx, tok.TenantID, entry)
}
