// Package testserver runs a fully wired galley instance over a temporary
// SQLite database for end-to-end tests.
package testserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/app"
	"github.com/rpggio/galley/internal/config"
	"github.com/rpggio/galley/internal/domain/scope"
)

// TenantID is the site every test server is seeded with.
const TenantID = "journal-of-graphs"

// Workflow is the editorial workflow seeded for TenantID.
const Workflow = `id: editorial
site: journal-of-graphs
name: Editorial review
initial: draft
states: [draft, submitted, under_review, accepted, published, rejected]
transitions:
  - from: draft
    to: submitted
    scopes: [submission:submit]
  - from: submitted
    to: under_review
    scopes: [submission:triage]
  - from: under_review
    to: rejected
    scopes: [submission:decide]
  - from: under_review
    to: accepted
    scopes: [submission:decide]
    job:
      type: crossref-deposit
  - from: accepted
    to: published
    scopes: [submission:publish]
    sets_published_date: true
    updates_slug: true
`

// Option adjusts the configuration before the app is built.
type Option func(*config.Config)

// WithConfig applies fn to the configuration.
func WithConfig(fn func(*config.Config)) Option {
	return Option(fn)
}

type TestServer struct {
	App    *app.App
	Server *httptest.Server
	// Token belongs to "editor", who holds every scope in TenantID.
	Token string
}

// New starts a server. It is torn down with the test.
func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	dir := t.TempDir()
	workflows := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(workflows, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workflows, "editorial.yaml"), []byte(Workflow), 0o644))

	cfg := config.Default()
	cfg.DB.URL = filepath.Join(dir, "galley.db")
	cfg.Workflows.Dir = workflows
	cfg.OCC.RetryDelay = 0
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	server := httptest.NewServer(a.Handler())

	ts := &TestServer{App: a, Server: server}
	ts.Token = ts.AddKey(t, "editor", scope.Wildcard)

	t.Cleanup(func() {
		server.Close()
		_ = a.Close()
	})
	return ts
}

// AddKey issues an API key for actorID in TenantID holding scopes.
func (ts *TestServer) AddKey(t *testing.T, actorID string, scopes ...string) string {
	t.Helper()
	ctx := context.Background()
	token, err := ts.App.Scopes.AddAPIKey(ctx, scope.Principal{TenantID: TenantID, ActorID: actorID}, "test key")
	require.NoError(t, err)
	for _, s := range scopes {
		require.NoError(t, ts.App.Scopes.Grant(ctx, TenantID, actorID, s))
	}
	return token
}

// Do sends a request with an optional bearer token and JSON body.
func (ts *TestServer) Do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Decode reads a JSON response body into a T.
func Decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
