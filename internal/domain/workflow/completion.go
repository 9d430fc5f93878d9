package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
)

// CompletionRequest is the job service reporting the outcome of a
// job-backed transition.
type CompletionRequest struct {
	Actor         scope.Principal
	SubmissionID  string
	CorrelationID string
	Succeeded     bool
	Error         string
	PublishedAt   *time.Time
}

// CompleteJob resolves the pending transition named by CorrelationID. On
// success the submission moves to the pending target state; on failure it
// stays put. Either way the pending transition is cleared. A correlation id
// that does not match the pending transition is rejected with
// ErrInvalidTransition, so a late or duplicate callback changes nothing.
// The caller must hold the scopes the pending edge requires, the same as
// for starting it.
func (e *Engine) CompleteJob(ctx context.Context, req CompletionRequest) (*Submission, error) {
	if req.SubmissionID == "" || req.CorrelationID == "" {
		return nil, ErrInvalidInput
	}
	ctx, span := tracer.Start(ctx, "workflow.CompleteJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", req.SubmissionID),
		attribute.String("job.correlation_id", req.CorrelationID),
		attribute.Bool("job.succeeded", req.Succeeded),
	)

	for attempt := 1; ; attempt++ {
		current, err := e.submissions.Get(ctx, req.Actor.TenantID, req.SubmissionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrSubmissionNotFound
			}
			return nil, fmt.Errorf("loading submission: %w", err)
		}
		pending := current.PendingTransition
		if pending == nil || pending.CorrelationID != req.CorrelationID {
			return nil, fmt.Errorf("%w: no pending job %s on submission %s", ErrInvalidTransition, req.CorrelationID, current.ID)
		}
		if err := e.requireScopes(ctx, req.Actor, current.TenantID, pending.From, pending.To, pending.RequiredScopes); err != nil {
			return nil, err
		}

		now := e.now()
		updated := *current
		updated.PendingTransition = nil
		updated.OCC = current.OCC + 1
		updated.UpdatedAt = now
		kind := activity.KindTransitionFailed
		if req.Succeeded {
			kind = activity.KindStatusChange
			updated.Status = pending.To
			if req.PublishedAt != nil {
				updated.PublishedAt = ResolvePublishedAt(current.PublishedAt, req.PublishedAt, now)
			}
		}

		err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := e.submissions.Update(ctx, current.TenantID, &updated, current.OCC); err != nil {
				return err
			}
			return e.logActivity(ctx, req.Actor, &updated, kind, transitionSnapshot{
				From:          pending.From,
				To:            pending.To,
				Action:        "job",
				JobType:       pending.JobType,
				CorrelationID: pending.CorrelationID,
				PublishedAt:   updated.PublishedAt,
				Error:         req.Error,
			})
		})
		if err == nil {
			if req.Succeeded {
				e.runAfterCommit(ctx, e.notification(scope.Principal{TenantID: current.TenantID, ActorID: pending.ActorID}, pending.From, &updated))
			}
			return &updated, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("completing job %s: %w", req.CorrelationID, err)
		}
		if attempt >= e.maxRetries {
			return nil, fmt.Errorf("%w: submission %s still contended after %d attempts", ErrConflict, current.ID, attempt)
		}
	}
}
