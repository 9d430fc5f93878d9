package workflow

import (
	"context"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/jobs"
	"github.com/rpggio/galley/internal/notify"
)

// SubmissionRepository provides persistence for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, tenantID string, sub *Submission) error
	Get(ctx context.Context, tenantID, id string) (*Submission, error)
	// Update writes sub only if the stored occ still equals expectedOCC.
	Update(ctx context.Context, tenantID string, sub *Submission, expectedOCC int64) error
}

// SlugRepository reserves public slugs per tenant.
type SlugRepository interface {
	// Claim reserves the first free candidate of base, base-2, base-3...
	// for submissionID and returns it. A slug the submission already owns
	// is returned as is.
	Claim(ctx context.Context, tenantID, submissionID, base string) (string, error)
	// Resolve returns the submission that owns slug. Superseded slugs keep
	// pointing at their submission.
	Resolve(ctx context.Context, tenantID, slug string) (string, error)
}

// SlugAssigner picks the slug for a submission inside the caller's
// transaction.
type SlugAssigner interface {
	AssignSlug(ctx context.Context, sub *Submission) (string, error)
}

// ActivityRepository logs workflow activities.
type ActivityRepository interface {
	Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error
}

// Source resolves workflow definitions.
type Source interface {
	Workflow(ctx context.Context, tenantID, id string) (*Workflow, error)
}

// Dispatcher submits jobs for job-backed transitions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req jobs.Request) error
}

// Notifier receives committed status changes.
type Notifier interface {
	StatusChanged(ctx context.Context, event notify.Event) error
}
