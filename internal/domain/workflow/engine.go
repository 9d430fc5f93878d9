package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/jobs"
	"github.com/rpggio/galley/internal/notify"
	"github.com/rpggio/galley/internal/repository"
)

var tracer = otel.Tracer("github.com/rpggio/galley/internal/domain/workflow")

const (
	defaultMaxRetries        = 5
	defaultBackgroundTimeout = 30 * time.Second
)

// EngineConfig wires an Engine. Dispatcher, Notifier and Slugs are
// optional; a transition that needs a missing one fails or is logged.
type EngineConfig struct {
	Submissions SubmissionRepository
	Activities  ActivityRepository
	Transactor  repository.Transactor
	Scopes      scope.Checker
	Slugs       SlugAssigner
	Dispatcher  Dispatcher
	Notifier    Notifier

	// MaxRetries bounds reload-and-retry after a lost conditional write.
	MaxRetries int
	// BackgroundTimeout bounds each after-commit dispatch or notification.
	BackgroundTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine validates and applies workflow transitions to submissions.
type Engine struct {
	submissions SubmissionRepository
	activities  ActivityRepository
	tx          repository.Transactor
	scopes      scope.Checker
	slugs       SlugAssigner
	dispatcher  Dispatcher
	notifier    Notifier

	maxRetries        int
	backgroundTimeout time.Duration
	logger            *slog.Logger
	now               func() time.Time

	background sync.WaitGroup
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		submissions:       cfg.Submissions,
		activities:        cfg.Activities,
		tx:                cfg.Transactor,
		scopes:            cfg.Scopes,
		slugs:             cfg.Slugs,
		dispatcher:        cfg.Dispatcher,
		notifier:          cfg.Notifier,
		maxRetries:        cfg.MaxRetries,
		backgroundTimeout: cfg.BackgroundTimeout,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
	if e.maxRetries <= 0 {
		e.maxRetries = defaultMaxRetries
	}
	if e.backgroundTimeout <= 0 {
		e.backgroundTimeout = defaultBackgroundTimeout
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// TransitionRequest asks to move Submission to state To. PublishedAt is the
// caller's requested publication date; it only matters for transitions that
// set one.
type TransitionRequest struct {
	Actor       scope.Principal
	Submission  *Submission
	Workflow    *Workflow
	To          State
	PublishedAt *time.Time
}

// CanTransition reports whether w declares the edge (from, to).
func (e *Engine) CanTransition(w *Workflow, from, to State) bool {
	return w != nil && w.CanTransition(from, to)
}

// Transition validates and applies one transition.
//
// Validation happens before any write: the edge must be declared, the actor
// must hold every required scope, and a job-backed edge is refused while
// another job is pending. A simple edge commits the new status, activity
// entry and any slug in one transaction and then notifies. A job-backed edge
// commits a pending transition and a TRANSITION_STARTED entry, then submits
// the job. Neither the notification nor the job submission can undo the
// commit.
//
// If the conditional write loses to a concurrent writer the submission is
// reloaded and the whole check runs again against its new status.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*Submission, error) {
	if req.Submission == nil || req.Workflow == nil || req.To == "" {
		return nil, ErrInvalidInput
	}
	if req.Submission.WorkflowID != req.Workflow.ID || req.Submission.TenantID != req.Workflow.TenantID {
		return nil, fmt.Errorf("%w: submission %s is not governed by workflow %s", ErrInvalidInput, req.Submission.ID, req.Workflow.ID)
	}

	ctx, span := tracer.Start(ctx, "workflow.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", req.Submission.ID),
		attribute.String("workflow.id", req.Workflow.ID),
		attribute.String("transition.to", string(req.To)),
	)

	current := req.Submission
	for attempt := 1; ; attempt++ {
		t, err := e.authorize(ctx, req.Actor, current, req.Workflow, req.To)
		if err != nil {
			return nil, err
		}

		var updated *Submission
		var after func(context.Context) error
		switch action := t.Action.(type) {
		case Simple:
			updated, err = e.applySimple(ctx, req, current, t, action)
			if err == nil {
				after = e.notification(req.Actor, current.Status, updated)
			}
		case JobBased:
			var jobReq jobs.Request
			updated, jobReq, err = e.startJob(ctx, req, current, t, action)
			if err == nil {
				after = e.dispatch(jobReq)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported action %T", ErrInvalidWorkflow, t.Action)
		}

		if err == nil {
			e.runAfterCommit(ctx, after)
			return updated, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("transitioning submission %s: %w", current.ID, err)
		}
		if attempt >= e.maxRetries {
			return nil, fmt.Errorf("%w: submission %s still contended after %d attempts", ErrConflict, current.ID, attempt)
		}

		e.logger.Debug("submission write lost race, reloading",
			"submission_id", current.ID, "attempt", attempt, "read_occ", current.OCC)
		current, err = e.submissions.Get(ctx, current.TenantID, current.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrSubmissionNotFound
			}
			return nil, fmt.Errorf("reloading submission: %w", err)
		}
	}
}

// Wait blocks until every after-commit dispatch and notification has
// finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

func (e *Engine) authorize(ctx context.Context, actor scope.Principal, sub *Submission, w *Workflow, to State) (Transition, error) {
	t, ok := w.Lookup(sub.Status, to)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s -> %s is not declared by workflow %s", ErrInvalidTransition, sub.Status, to, w.ID)
	}
	if err := e.requireScopes(ctx, actor, sub.TenantID, sub.Status, to, t.RequiredScopes); err != nil {
		return Transition{}, err
	}
	if t.RequiresJob() && sub.PendingTransition != nil {
		return Transition{}, fmt.Errorf("%w: job %s for %s -> %s is still pending", ErrInvalidTransition,
			sub.PendingTransition.CorrelationID, sub.PendingTransition.From, sub.PendingTransition.To)
	}
	return t, nil
}

// requireScopes fails with ErrForbidden unless actor holds every scope the
// from -> to edge requires.
func (e *Engine) requireScopes(ctx context.Context, actor scope.Principal, tenantID string, from, to State, scopes []string) error {
	if len(scopes) == 0 {
		return nil
	}
	if e.scopes == nil {
		return fmt.Errorf("%w: no scope checker configured", ErrForbidden)
	}
	allowed, err := e.scopes.HasScopes(ctx, actor, tenantID, scopes)
	if err != nil {
		return fmt.Errorf("checking scopes: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s requires %v", ErrForbidden, from, to, scopes)
	}
	return nil
}

func (e *Engine) applySimple(ctx context.Context, req TransitionRequest, current *Submission, t Transition, action Simple) (*Submission, error) {
	now := e.now()
	updated := *current
	updated.Status = t.To
	updated.PendingTransition = nil
	updated.OCC = current.OCC + 1
	updated.UpdatedAt = now
	if action.SetsPublishedDate {
		updated.PublishedAt = ResolvePublishedAt(current.PublishedAt, req.PublishedAt, now)
	}

	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if action.UpdatesSlug {
			if e.slugs == nil {
				return errors.New("no slug assigner configured")
			}
			slug, err := e.slugs.AssignSlug(ctx, &updated)
			if err != nil {
				return fmt.Errorf("assigning slug: %w", err)
			}
			updated.Slug = &slug
		}
		if err := e.submissions.Update(ctx, current.TenantID, &updated, current.OCC); err != nil {
			return err
		}
		return e.logActivity(ctx, req.Actor, &updated, activity.KindStatusChange, transitionSnapshot{
			From:              current.Status,
			To:                t.To,
			Action:            "simple",
			SetsPublishedDate: action.SetsPublishedDate,
			UpdatesSlug:       action.UpdatesSlug,
			PublishedAt:       updated.PublishedAt,
			Slug:              updated.Slug,
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (e *Engine) startJob(ctx context.Context, req TransitionRequest, current *Submission, t Transition, action JobBased) (*Submission, jobs.Request, error) {
	correlation, err := uuid.NewV7()
	if err != nil {
		return nil, jobs.Request{}, fmt.Errorf("minting correlation id: %w", err)
	}
	now := e.now()
	pending := &PendingTransition{
		CorrelationID:  correlation.String(),
		From:           current.Status,
		To:             t.To,
		RequiredScopes: t.RequiredScopes,
		JobType:        action.JobType,
		Options:        action.Options,
		ActorID:        req.Actor.ActorID,
		StartedAt:      now,
	}
	updated := *current
	updated.PendingTransition = pending
	updated.OCC = current.OCC + 1
	updated.UpdatedAt = now

	payload, err := json.Marshal(jobPayload{
		TenantID:             current.TenantID,
		SubmissionID:         current.ID,
		WorkflowID:           current.WorkflowID,
		CorrelationID:        pending.CorrelationID,
		From:                 pending.From,
		To:                   pending.To,
		ActorID:              pending.ActorID,
		Options:              action.Options,
		RequestedPublishedAt: req.PublishedAt,
	})
	if err != nil {
		return nil, jobs.Request{}, fmt.Errorf("encoding job payload: %w", err)
	}

	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := e.submissions.Update(ctx, current.TenantID, &updated, current.OCC); err != nil {
			return err
		}
		return e.logActivity(ctx, req.Actor, &updated, activity.KindTransitionStarted, transitionSnapshot{
			From:          current.Status,
			To:            t.To,
			Action:        "job",
			JobType:       action.JobType,
			Options:       action.Options,
			CorrelationID: pending.CorrelationID,
		})
	})
	if err != nil {
		return nil, jobs.Request{}, err
	}
	return &updated, jobs.Request{JobID: pending.CorrelationID, JobType: action.JobType, Payload: payload}, nil
}

func (e *Engine) logActivity(ctx context.Context, actor scope.Principal, sub *Submission, kind activity.Kind, snapshot transitionSnapshot) error {
	if e.activities == nil {
		return nil
	}
	entry, err := activity.NewEntry(ctx, activity.SubjectSubmission, sub.ID, actor.ActorID, kind, snapshot)
	if err != nil {
		return err
	}
	if err := e.activities.Log(ctx, sub.TenantID, entry); err != nil {
		return fmt.Errorf("logging %s: %w", kind, err)
	}
	return nil
}

func (e *Engine) notification(actor scope.Principal, from State, sub *Submission) func(context.Context) error {
	if e.notifier == nil {
		return nil
	}
	event := notify.Event{
		TenantID:     sub.TenantID,
		SubmissionID: sub.ID,
		Title:        sub.Title,
		From:         string(from),
		To:           string(sub.Status),
		ActorID:      actor.ActorID,
		PublishedAt:  sub.PublishedAt,
		OccurredAt:   sub.UpdatedAt,
	}
	if sub.Slug != nil {
		event.Slug = *sub.Slug
	}
	return func(ctx context.Context) error {
		if err := e.notifier.StatusChanged(ctx, event); err != nil {
			return fmt.Errorf("notifying status change of %s: %w", sub.ID, err)
		}
		return nil
	}
}

func (e *Engine) dispatch(req jobs.Request) func(context.Context) error {
	if e.dispatcher == nil {
		e.logger.Warn("no job dispatcher configured, job not submitted", "job_id", req.JobID, "job_type", req.JobType)
		return nil
	}
	return func(ctx context.Context) error {
		if err := e.dispatcher.Dispatch(ctx, req); err != nil {
			return fmt.Errorf("dispatching job %s (%s): %w", req.JobID, req.JobType, err)
		}
		return nil
	}
}

// runAfterCommit runs fn in the background, detached from ctx's
// cancellation but keeping its values. Failures are logged only.
func (e *Engine) runAfterCommit(ctx context.Context, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		runCtx, cancel := context.WithTimeout(detached, e.backgroundTimeout)
		defer cancel()
		if err := fn(runCtx); err != nil {
			e.logger.Error("after-commit call failed", "error", err)
		}
	}()
}

// ResolvePublishedAt applies first-write-wins: an existing date is kept,
// otherwise the requested date is used, otherwise now.
func ResolvePublishedAt(existing, requested *time.Time, now time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	if requested != nil {
		t := requested.UTC()
		return &t
	}
	return &now
}

type transitionSnapshot struct {
	From              State          `json:"from"`
	To                State          `json:"to"`
	Action            string         `json:"action"`
	SetsPublishedDate bool           `json:"sets_published_date,omitempty"`
	UpdatesSlug       bool           `json:"updates_slug,omitempty"`
	PublishedAt       *time.Time     `json:"published_at,omitempty"`
	Slug              *string        `json:"slug,omitempty"`
	JobType           string         `json:"job_type,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
	CorrelationID     string         `json:"correlation_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}

type jobPayload struct {
	TenantID             string         `json:"tenantId"`
	SubmissionID         string         `json:"submissionId"`
	WorkflowID           string         `json:"workflowId"`
	CorrelationID        string         `json:"correlationId"`
	From                 State          `json:"from"`
	To                   State          `json:"to"`
	ActorID              string         `json:"actorId"`
	Options              map[string]any `json:"options,omitempty"`
	RequestedPublishedAt *time.Time     `json:"requestedPublishedAt,omitempty"`
}
