package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/repository"
)

const editorialYAML = `
id: editorial
site: site-a
name: Editorial review
initial: draft
states: [draft, accepted, published]
transitions:
  - from: draft
    to: accepted
    scopes: [submission:accept]
    job:
      type: crossref-deposit
  - from: accepted
    to: published
    scopes: [submission:publish]
    sets_published_date: true
    updates_slug: true
`

func TestSubmissionRepository_RoundTrip(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSubmissionRepository(db)

	now := time.Now().UTC()
	sub := &workflow.Submission{
		ID: "s1", WorkflowID: "editorial", Title: "On Graphs", Status: "draft",
		OCC: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, "site-a", sub))

	next := *sub
	next.PendingTransition = &workflow.PendingTransition{
		CorrelationID: "c1", From: "draft", To: "accepted", JobType: "crossref-deposit",
		Options: map[string]any{"registrar": "crossref"}, StartedAt: now,
	}
	next.OCC = 2
	require.NoError(t, repo.Update(ctx, "site-a", &next, 1))
	require.ErrorIs(t, repo.Update(ctx, "site-a", &next, 1), repository.ErrConflict)

	loaded, err := repo.Get(ctx, "site-a", "s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.OCC)
	require.NotNil(t, loaded.PendingTransition)
	require.Equal(t, "c1", loaded.PendingTransition.CorrelationID)
	require.Equal(t, "crossref", loaded.PendingTransition.Options["registrar"])
	require.Nil(t, loaded.PublishedAt)
	require.Nil(t, loaded.Slug)
}

func TestSlugRepository_ClaimsNextFreeCandidate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSlugRepository(db)

	slug, err := repo.Claim(ctx, "site-a", "s1", "on-graphs")
	require.NoError(t, err)
	require.Equal(t, "on-graphs", slug)

	slug, err = repo.Claim(ctx, "site-a", "s2", "on-graphs")
	require.NoError(t, err)
	require.Equal(t, "on-graphs-2", slug)

	slug, err = repo.Claim(ctx, "site-a", "s1", "on-graphs")
	require.NoError(t, err)
	require.Equal(t, "on-graphs", slug, "owner keeps its slug")

	slug, err = repo.Claim(ctx, "site-b", "s3", "on-graphs")
	require.NoError(t, err)
	require.Equal(t, "on-graphs", slug, "slugs are per tenant")

	owner, err := repo.Resolve(ctx, "site-a", "on-graphs-2")
	require.NoError(t, err)
	require.Equal(t, "s2", owner)
}

func TestWorkflowService_EndToEnd(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	w, err := workflow.Parse([]byte(editorialYAML))
	require.NoError(t, err)
	registry, err := workflow.NewRegistry(w)
	require.NoError(t, err)

	grants := NewGrantRepository(db)
	scopes := scope.NewService(grants, NewAPIKeyRepository(db), nil)
	editor := scope.Principal{TenantID: "site-a", ActorID: "ed"}
	require.NoError(t, scopes.Grant(ctx, "site-a", "ed", scope.Wildcard))

	submissions := NewSubmissionRepository(db)
	slugs := NewSlugRepository(db)
	activities := NewActivityRepository(db)
	engine := workflow.NewEngine(workflow.EngineConfig{
		Submissions: submissions,
		Activities:  activities,
		Transactor:  db,
		Scopes:      scopes,
		Slugs:       workflow.NewSlugAssigner(slugs),
	})
	svc := workflow.NewService(submissions, slugs, activities, db, registry, scopes, engine, nil)

	sub, err := svc.Create(ctx, editor, workflow.CreateRequest{WorkflowID: "editorial", Title: "Über Graphs"})
	require.NoError(t, err)
	require.Equal(t, workflow.State("draft"), sub.Status)

	sub, err = svc.Transition(ctx, editor, workflow.TransitionCommand{SubmissionID: sub.ID, To: "accepted"})
	require.NoError(t, err)
	require.Equal(t, workflow.State("draft"), sub.Status, "job-backed transition leaves status alone")
	require.NotNil(t, sub.PendingTransition)

	_, err = svc.Transition(ctx, editor, workflow.TransitionCommand{SubmissionID: sub.ID, To: "accepted"})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition, "second job refused while one is pending")

	sub, err = svc.CompleteJob(ctx, workflow.CompletionRequest{
		Actor: editor, SubmissionID: sub.ID, CorrelationID: sub.PendingTransition.CorrelationID, Succeeded: true,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.State("accepted"), sub.Status)
	require.Nil(t, sub.PendingTransition)

	requested := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sub, err = svc.Transition(ctx, editor, workflow.TransitionCommand{SubmissionID: sub.ID, To: "published", PublishedAt: &requested})
	require.NoError(t, err)
	require.Equal(t, workflow.State("published"), sub.Status)
	require.True(t, requested.Equal(*sub.PublishedAt))
	require.Equal(t, "uber-graphs", *sub.Slug)
	engine.Wait()

	stored, err := svc.Get(ctx, "site-a", sub.ID)
	require.NoError(t, err)
	require.Equal(t, sub.OCC, stored.OCC)
	require.Equal(t, "uber-graphs", *stored.Slug)

	bySlug, err := svc.GetBySlug(ctx, "site-a", "uber-graphs")
	require.NoError(t, err)
	require.Equal(t, sub.ID, bySlug.ID)
	_, err = svc.GetBySlug(ctx, "site-b", "uber-graphs")
	require.ErrorIs(t, err, workflow.ErrSubmissionNotFound)

	subjectID := sub.ID
	entries, err := activities.List(ctx, "site-a", activity.ListActivityOptions{SubjectID: &subjectID})
	require.NoError(t, err)
	kinds := make([]activity.Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	require.Equal(t, []activity.Kind{
		activity.KindStatusChange,
		activity.KindStatusChange,
		activity.KindTransitionStarted,
		activity.KindSubmissionCreated,
	}, kinds)
}
