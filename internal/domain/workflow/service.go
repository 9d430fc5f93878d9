package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
)

// Service resolves submissions and workflows by id and drives the engine.
type Service struct {
	submissions SubmissionRepository
	slugs       SlugRepository
	activities  ActivityRepository
	tx          repository.Transactor
	workflows   Source
	scopes      scope.Checker
	engine      *Engine
	logger      *slog.Logger
}

// NewService creates a new workflow service.
func NewService(
	submissions SubmissionRepository,
	slugs SlugRepository,
	activities ActivityRepository,
	tx repository.Transactor,
	workflows Source,
	scopes scope.Checker,
	engine *Engine,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		submissions: submissions,
		slugs:       slugs,
		activities:  activities,
		tx:          tx,
		workflows:   workflows,
		scopes:      scopes,
		engine:      engine,
		logger:      logger,
	}
}

// CreateRequest describes a new submission.
type CreateRequest struct {
	WorkflowID string
	Title      string
}

// TransitionCommand asks to move submission SubmissionID to To.
type TransitionCommand struct {
	SubmissionID string
	To           State
	PublishedAt  *time.Time
}

// Create inserts a submission in its workflow's initial state.
func (s *Service) Create(ctx context.Context, actor scope.Principal, req CreateRequest) (*Submission, error) {
	if strings.TrimSpace(req.Title) == "" || req.WorkflowID == "" {
		return nil, fmt.Errorf("%w: workflow and title are required", ErrInvalidInput)
	}
	w, err := s.workflows.Workflow(ctx, actor.TenantID, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Submission{
		ID:         uuid.NewString(),
		TenantID:   actor.TenantID,
		WorkflowID: w.ID,
		Title:      strings.TrimSpace(req.Title),
		Status:     w.Initial,
		OCC:        1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.submissions.Create(ctx, actor.TenantID, sub); err != nil {
			return fmt.Errorf("creating submission: %w", err)
		}
		if s.activities == nil {
			return nil
		}
		entry, err := activity.NewEntry(ctx, activity.SubjectSubmission, sub.ID, actor.ActorID, activity.KindSubmissionCreated, map[string]any{
			"workflow_id": w.ID,
			"status":      sub.Status,
			"title":       sub.Title,
		})
		if err != nil {
			return err
		}
		return s.activities.Log(ctx, actor.TenantID, entry)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Get retrieves a submission by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Submission, error) {
	sub, err := s.submissions.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("loading submission: %w", err)
	}
	return sub, nil
}

// GetBySlug retrieves the submission a public slug points to.
func (s *Service) GetBySlug(ctx context.Context, tenantID, slug string) (*Submission, error) {
	id, err := s.slugs.Resolve(ctx, tenantID, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("resolving slug: %w", err)
	}
	return s.Get(ctx, tenantID, id)
}

// Transition loads the submission and its workflow and applies the
// transition as actor.
func (s *Service) Transition(ctx context.Context, actor scope.Principal, cmd TransitionCommand) (*Submission, error) {
	sub, w, err := s.load(ctx, actor.TenantID, cmd.SubmissionID)
	if err != nil {
		return nil, err
	}
	return s.engine.Transition(ctx, TransitionRequest{
		Actor:       actor,
		Submission:  sub,
		Workflow:    w,
		To:          cmd.To,
		PublishedAt: cmd.PublishedAt,
	})
}

// CompleteJob records the outcome of a job-backed transition.
func (s *Service) CompleteJob(ctx context.Context, req CompletionRequest) (*Submission, error) {
	return s.engine.CompleteJob(ctx, req)
}

// AvailableTransitions lists the edges leaving the submission's status that
// actor may take. Job-backed edges are omitted while a job is pending.
func (s *Service) AvailableTransitions(ctx context.Context, actor scope.Principal, submissionID string) ([]Transition, error) {
	sub, w, err := s.load(ctx, actor.TenantID, submissionID)
	if err != nil {
		return nil, err
	}

	var out []Transition
	for _, t := range w.Outgoing(sub.Status) {
		if t.RequiresJob() && sub.PendingTransition != nil {
			continue
		}
		if len(t.RequiredScopes) > 0 {
			ok, err := s.scopes.HasScopes(ctx, actor, sub.TenantID, t.RequiredScopes)
			if err != nil {
				return nil, fmt.Errorf("checking scopes: %w", err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, tenantID, submissionID string) (*Submission, *Workflow, error) {
	sub, err := s.Get(ctx, tenantID, submissionID)
	if err != nil {
		return nil, nil, err
	}
	w, err := s.workflows.Workflow(ctx, sub.TenantID, sub.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	return sub, w, nil
}
