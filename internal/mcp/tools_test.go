package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/config"
	"github.com/rpggio/galley/internal/mcp"
	"github.com/rpggio/galley/internal/testserver"
)

// connect serves the app's MCP server over an in-memory transport as the
// seeded editor.
func connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	ts := testserver.New(t, testserver.WithConfig(func(cfg *config.Config) {
		cfg.Auth.Enabled = false
		cfg.Auth.DefaultTenant = testserver.TenantID
		cfg.Auth.DefaultActor = "editor"
	}))

	ctx := context.Background()
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := ts.App.MCP.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func call[T any](t *testing.T, session *sdkmcp.ClientSession, tool string, args map[string]any) T {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError, "%s failed: %s", tool, errorText(result))
	return decodeStructuredContent[T](t, result.StructuredContent)
}

func callError(t *testing.T, session *sdkmcp.ClientSession, tool string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	require.True(t, result.IsError, "%s unexpectedly succeeded", tool)
	return errorText(result)
}

func errorText(result *sdkmcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(*sdkmcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func decodeStructuredContent[T any](t *testing.T, value any) T {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestTools_ListIncludesEveryTool(t *testing.T) {
	session := connect(t)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"create_record", "get_record", "set_record_field",
		"create_submission", "get_submission", "list_transitions", "transition_submission", "complete_job",
		"create_access_token", "get_access_token", "revoke_access_token", "reactivate_access_token",
		"delete_access_token", "validate_access", "get_access_log",
		"list_activity",
	}, names)
}

func TestTools_Records(t *testing.T) {
	session := connect(t)

	rec := call[mcp.RecordOutput](t, session, "create_record", map[string]any{
		"payload": map[string]any{"title": "Draft"},
	})
	require.EqualValues(t, 1, rec.OCC)

	rec = call[mcp.RecordOutput](t, session, "set_record_field", map[string]any{
		"id": rec.ID, "path": "author.name", "value": "Ada",
	})
	require.EqualValues(t, 2, rec.OCC)
	require.Equal(t, map[string]any{"title": "Draft", "author": map[string]any{"name": "Ada"}}, rec.Payload)

	rec = call[mcp.RecordOutput](t, session, "set_record_field", map[string]any{
		"id": rec.ID, "path": "author", "delete": true,
	})
	require.EqualValues(t, 3, rec.OCC)

	got := call[mcp.RecordOutput](t, session, "get_record", map[string]any{"id": rec.ID})
	require.Equal(t, map[string]any{"title": "Draft"}, got.Payload)

	require.Contains(t, callError(t, session, "get_record", map[string]any{"id": "missing"}), "RECORD_NOT_FOUND")
}

func TestTools_SubmissionWorkflow(t *testing.T) {
	session := connect(t)

	sub := call[mcp.SubmissionOutput](t, session, "create_submission", map[string]any{
		"workflow_id": "editorial", "title": "Planar Embeddings",
	})
	require.Equal(t, "draft", sub.Status)

	listed := call[mcp.ListTransitionsOutput](t, session, "list_transitions", map[string]any{"submission_id": sub.ID})
	require.Len(t, listed.Transitions, 1)
	require.Equal(t, "submitted", listed.Transitions[0].To)

	require.Contains(t, callError(t, session, "transition_submission", map[string]any{
		"submission_id": sub.ID, "to": "published",
	}), "INVALID_TRANSITION")

	for _, to := range []string{"submitted", "under_review"} {
		sub = call[mcp.SubmissionOutput](t, session, "transition_submission", map[string]any{"submission_id": sub.ID, "to": to})
		require.Equal(t, to, sub.Status)
	}

	sub = call[mcp.SubmissionOutput](t, session, "transition_submission", map[string]any{"submission_id": sub.ID, "to": "accepted"})
	require.Equal(t, "under_review", sub.Status)
	require.NotNil(t, sub.PendingTransition)

	sub = call[mcp.SubmissionOutput](t, session, "complete_job", map[string]any{
		"submission_id": sub.ID, "correlation_id": sub.PendingTransition.CorrelationID, "succeeded": true,
	})
	require.Equal(t, "accepted", sub.Status)
	require.Nil(t, sub.PendingTransition)

	sub = call[mcp.SubmissionOutput](t, session, "transition_submission", map[string]any{
		"submission_id": sub.ID, "to": "published", "published_at": "2026-03-01T09:00:00Z",
	})
	require.Equal(t, "published", sub.Status)
	require.Equal(t, "2026-03-01T09:00:00Z", sub.PublishedAt)
	require.Equal(t, "planar-embeddings", sub.Slug)

	bySlug := call[mcp.SubmissionOutput](t, session, "get_submission", map[string]any{"slug": "planar-embeddings"})
	require.Equal(t, sub.ID, bySlug.ID)

	log := call[mcp.ListActivityOutput](t, session, "list_activity", map[string]any{
		"subject_type": "submission", "subject_id": sub.ID, "kind": "STATUS_CHANGE",
	})
	require.Len(t, log.Entries, 4)
	require.Equal(t, "editor", log.Entries[0].ActorID)
}

func TestTools_AccessTokens(t *testing.T) {
	session := connect(t)

	tok := call[mcp.TokenOutput](t, session, "create_access_token", map[string]any{
		"resource": "proof/7", "access_limit": 1,
	})
	require.NotNil(t, tok.AccessLimit)

	first := call[mcp.AccessResultOutput](t, session, "validate_access", map[string]any{"id": tok.ID})
	require.True(t, first.Valid)
	second := call[mcp.AccessResultOutput](t, session, "validate_access", map[string]any{"id": tok.ID})
	require.False(t, second.Valid)
	require.Equal(t, "Access limit reached", second.Reason)

	revoked := call[mcp.TokenOutput](t, session, "revoke_access_token", map[string]any{"id": tok.ID})
	require.True(t, revoked.Revoked)
	reactivated := call[mcp.TokenOutput](t, session, "reactivate_access_token", map[string]any{"id": tok.ID})
	require.False(t, reactivated.Revoked)

	entries := call[mcp.AccessLogOutput](t, session, "get_access_log", map[string]any{"token_id": tok.ID})
	require.Len(t, entries.Entries, 2)

	deleted := call[mcp.DeleteOutput](t, session, "delete_access_token", map[string]any{"id": tok.ID})
	require.True(t, deleted.Deleted)
	require.Contains(t, callError(t, session, "get_access_token", map[string]any{"id": tok.ID}), "TOKEN_NOT_FOUND")

	require.Contains(t, callError(t, session, "create_access_token", map[string]any{
		"resource": "proof/8", "access_limit": 0,
	}), "INVALID_INPUT")
}
