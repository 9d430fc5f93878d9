package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
)

var errInvalidArgument = errors.New("invalid argument")

type tools struct {
	svc    Services
	logger *slog.Logger
}

func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &tools{svc: svc, logger: logger}

	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "create_record", Description: "Store a new JSON record"}, t.createRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_record", Description: "Fetch a record and its occ"}, t.getRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "set_record_field", Description: "Set or delete one field of a record, retrying on concurrent writes"}, t.setRecordField)

	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "create_submission", Description: "Create a submission in its workflow's initial state"}, t.createSubmission)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_submission", Description: "Fetch a submission by id or slug"}, t.getSubmission)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_transitions", Description: "List transitions the caller may take from the submission's current state"}, t.listTransitions)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "transition_submission", Description: "Move a submission to another state"}, t.transitionSubmission)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "complete_job", Description: "Report the outcome of a job-backed transition"}, t.completeJob)

	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "create_access_token", Description: "Create a magic link"}, t.createAccessToken)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_access_token", Description: "Fetch a magic link"}, t.getAccessToken)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "revoke_access_token", Description: "Revoke a magic link"}, t.revokeAccessToken)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "reactivate_access_token", Description: "Lift a revocation"}, t.reactivateAccessToken)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "delete_access_token", Description: "Delete a magic link; its access log is kept"}, t.deleteAccessToken)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "validate_access", Description: "Check a magic link and record the attempt"}, t.validateAccess)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "get_access_log", Description: "List access attempts for a magic link, newest first"}, t.getAccessLog)

	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "list_activity", Description: "List activity entries, newest first"}, t.listActivity)
}

// fail converts err into a tool error, logging anything unexpected.
func fail[O any](ctx context.Context, logger *slog.Logger, tool string, err error) (*sdkmcp.CallToolResult, O, error) {
	var zero O
	apiErr := MapError(err)
	if apiErr.Code == "INTERNAL" {
		logger.ErrorContext(ctx, "mcp tool failed", "tool", tool, "error", err)
	}
	return nil, zero, apiErr
}

func parseTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339", errInvalidArgument, field)
	}
	return &t, nil
}

func (t *tools) createRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateRecordInput) (*sdkmcp.CallToolResult, RecordOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "create_record", err)
	}
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "create_record", fmt.Errorf("%w: payload: %v", errInvalidArgument, err))
	}
	rec, err := t.svc.Records.Create(ctx, p.TenantID, payload)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "create_record", err)
	}
	return nil, newRecordOutput(rec), nil
}

func (t *tools) getRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetRecordInput) (*sdkmcp.CallToolResult, RecordOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "get_record", err)
	}
	rec, err := t.svc.Records.Get(ctx, p.TenantID, in.ID)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "get_record", err)
	}
	return nil, newRecordOutput(rec), nil
}

func (t *tools) setRecordField(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetRecordFieldInput) (*sdkmcp.CallToolResult, RecordOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "set_record_field", err)
	}
	modify := record.DeleteField(in.Path)
	if !in.Delete {
		value, err := json.Marshal(in.Value)
		if err != nil {
			return fail[RecordOutput](ctx, t.logger, "set_record_field", fmt.Errorf("%w: value: %v", errInvalidArgument, err))
		}
		modify = record.SetField(in.Path, value)
	}
	rec, err := t.svc.Records.Update(ctx, p.TenantID, in.ID, modify, record.WithActor(p.ActorID))
	if err != nil {
		return fail[RecordOutput](ctx, t.logger, "set_record_field", err)
	}
	return nil, newRecordOutput(rec), nil
}

func (t *tools) createSubmission(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateSubmissionInput) (*sdkmcp.CallToolResult, SubmissionOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "create_submission", err)
	}
	sub, err := t.svc.Submissions.Create(ctx, p, workflow.CreateRequest{WorkflowID: in.WorkflowID, Title: in.Title})
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "create_submission", err)
	}
	return nil, newSubmissionOutput(sub), nil
}

func (t *tools) getSubmission(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetSubmissionInput) (*sdkmcp.CallToolResult, SubmissionOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "get_submission", err)
	}
	var sub *workflow.Submission
	switch {
	case in.ID != "":
		sub, err = t.svc.Submissions.Get(ctx, p.TenantID, in.ID)
	case in.Slug != "":
		sub, err = t.svc.Submissions.GetBySlug(ctx, p.TenantID, in.Slug)
	default:
		err = fmt.Errorf("%w: id or slug is required", errInvalidArgument)
	}
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "get_submission", err)
	}
	return nil, newSubmissionOutput(sub), nil
}

func (t *tools) listTransitions(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListTransitionsInput) (*sdkmcp.CallToolResult, ListTransitionsOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[ListTransitionsOutput](ctx, t.logger, "list_transitions", err)
	}
	transitions, err := t.svc.Submissions.AvailableTransitions(ctx, p, in.SubmissionID)
	if err != nil {
		return fail[ListTransitionsOutput](ctx, t.logger, "list_transitions", err)
	}
	out := ListTransitionsOutput{Transitions: make([]TransitionOutput, 0, len(transitions))}
	for _, tr := range transitions {
		out.Transitions = append(out.Transitions, newTransitionOutput(tr))
	}
	return nil, out, nil
}

func (t *tools) transitionSubmission(ctx context.Context, _ *sdkmcp.CallToolRequest, in TransitionSubmissionInput) (*sdkmcp.CallToolResult, SubmissionOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "transition_submission", err)
	}
	publishedAt, err := parseTime("published_at", in.PublishedAt)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "transition_submission", err)
	}
	sub, err := t.svc.Submissions.Transition(ctx, p, workflow.TransitionCommand{
		SubmissionID: in.SubmissionID,
		To:           workflow.State(in.To),
		PublishedAt:  publishedAt,
	})
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "transition_submission", err)
	}
	return nil, newSubmissionOutput(sub), nil
}

func (t *tools) completeJob(ctx context.Context, _ *sdkmcp.CallToolRequest, in CompleteJobInput) (*sdkmcp.CallToolResult, SubmissionOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "complete_job", err)
	}
	publishedAt, err := parseTime("published_at", in.PublishedAt)
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "complete_job", err)
	}
	sub, err := t.svc.Submissions.CompleteJob(ctx, workflow.CompletionRequest{
		Actor:         p,
		SubmissionID:  in.SubmissionID,
		CorrelationID: in.CorrelationID,
		Succeeded:     in.Succeeded,
		Error:         in.Error,
		PublishedAt:   publishedAt,
	})
	if err != nil {
		return fail[SubmissionOutput](ctx, t.logger, "complete_job", err)
	}
	return nil, newSubmissionOutput(sub), nil
}

func (t *tools) createAccessToken(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateAccessTokenInput) (*sdkmcp.CallToolResult, TokenOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, "create_access_token", err)
	}
	expiresAt, err := parseTime("expires_at", in.ExpiresAt)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, "create_access_token", err)
	}
	tok, err := t.svc.Access.Create(ctx, p, access.CreateRequest{
		Resource:    in.Resource,
		ExpiresAt:   expiresAt,
		AccessLimit: in.AccessLimit,
	})
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, "create_access_token", err)
	}
	return nil, newTokenOutput(tok), nil
}

func (t *tools) getAccessToken(ctx context.Context, _ *sdkmcp.CallToolRequest, in TokenIDInput) (*sdkmcp.CallToolResult, TokenOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, "get_access_token", err)
	}
	tok, err := t.svc.Access.Get(ctx, p.TenantID, in.ID)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, "get_access_token", err)
	}
	return nil, newTokenOutput(tok), nil
}

func (t *tools) revokeAccessToken(ctx context.Context, _ *sdkmcp.CallToolRequest, in TokenIDInput) (*sdkmcp.CallToolResult, TokenOutput, error) {
	return t.setRevoked(ctx, "revoke_access_token", in.ID, t.svc.Access.Revoke)
}

func (t *tools) reactivateAccessToken(ctx context.Context, _ *sdkmcp.CallToolRequest, in TokenIDInput) (*sdkmcp.CallToolResult, TokenOutput, error) {
	return t.setRevoked(ctx, "reactivate_access_token", in.ID, t.svc.Access.Reactivate)
}

func (t *tools) setRevoked(ctx context.Context, tool, id string, apply func(context.Context, scope.Principal, string) (*access.Token, error)) (*sdkmcp.CallToolResult, TokenOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, tool, err)
	}
	tok, err := apply(ctx, p, id)
	if err != nil {
		return fail[TokenOutput](ctx, t.logger, tool, err)
	}
	return nil, newTokenOutput(tok), nil
}

func (t *tools) deleteAccessToken(ctx context.Context, _ *sdkmcp.CallToolRequest, in TokenIDInput) (*sdkmcp.CallToolResult, DeleteOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[DeleteOutput](ctx, t.logger, "delete_access_token", err)
	}
	if err := t.svc.Access.Delete(ctx, p, in.ID); err != nil {
		return fail[DeleteOutput](ctx, t.logger, "delete_access_token", err)
	}
	return nil, DeleteOutput{Deleted: true}, nil
}

func (t *tools) validateAccess(ctx context.Context, _ *sdkmcp.CallToolRequest, in TokenIDInput) (*sdkmcp.CallToolResult, AccessResultOutput, error) {
	attempt := access.Attempt{}
	if p, ok := scope.PrincipalFromContext(ctx); ok {
		attempt.ActorID = p.ActorID
	}
	result, err := t.svc.Access.ValidateAndLogAccess(ctx, in.ID, attempt)
	if err != nil {
		return fail[AccessResultOutput](ctx, t.logger, "validate_access", err)
	}
	return nil, AccessResultOutput{Valid: result.Valid, Reason: result.Reason}, nil
}

func (t *tools) getAccessLog(ctx context.Context, _ *sdkmcp.CallToolRequest, in AccessLogInput) (*sdkmcp.CallToolResult, AccessLogOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[AccessLogOutput](ctx, t.logger, "get_access_log", err)
	}
	entries, err := t.svc.Access.AccessLog(ctx, p.TenantID, in.TokenID, in.Limit)
	if err != nil {
		return fail[AccessLogOutput](ctx, t.logger, "get_access_log", err)
	}
	out := AccessLogOutput{Entries: make([]AccessLogEntryOutput, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, AccessLogEntryOutput{
			AttemptedAt: formatTime(e.AttemptedAt),
			Success:     e.Success,
			Reason:      e.Reason,
		})
	}
	return nil, out, nil
}

func (t *tools) listActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListActivityInput) (*sdkmcp.CallToolResult, ListActivityOutput, error) {
	p, err := principalFrom(ctx)
	if err != nil {
		return fail[ListActivityOutput](ctx, t.logger, "list_activity", err)
	}
	opts := activity.ListActivityOptions{Limit: in.Limit, Offset: in.Offset}
	if in.SubjectType != "" {
		st := activity.SubjectType(in.SubjectType)
		opts.SubjectType = &st
	}
	if in.SubjectID != "" {
		opts.SubjectID = &in.SubjectID
	}
	if in.Kind != "" {
		k := activity.Kind(in.Kind)
		opts.Kind = &k
	}
	entries, err := t.svc.Activity.List(ctx, p.TenantID, opts)
	if err != nil {
		return fail[ListActivityOutput](ctx, t.logger, "list_activity", err)
	}
	out := ListActivityOutput{Entries: make([]ActivityEntryOutput, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, newActivityEntryOutput(e))
	}
	return nil, out, nil
}
