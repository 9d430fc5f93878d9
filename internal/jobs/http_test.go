package jobs_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rpggio/galley/internal/jobs"
)

func TestHTTPDispatcher_PostsRequest(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := jobs.NewHTTPDispatcher(srv.URL, jobs.APIKey{Key: "secret"}, srv.Client(), nil)
	err := d.Dispatch(context.Background(), jobs.Request{
		JobID:   "0190a6c0-0000-7000-8000-000000000001",
		JobType: "typeset",
		Payload: json.RawMessage(`{"submissionId":"s1","options":{"format":"pdf"}}`),
	})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "secret", got.Header.Get("X-API-Key"))
	assert.Equal(t, "0190a6c0-0000-7000-8000-000000000001", got.Header.Get("Idempotency-Key"))

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "0190a6c0-0000-7000-8000-000000000001", parsed.Get("jobId").String())
	assert.Equal(t, "typeset", parsed.Get("jobType").String())
	assert.Equal(t, "pdf", parsed.Get("payload.options.format").String())
}

func TestHTTPDispatcher_RejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := jobs.NewHTTPDispatcher(srv.URL, nil, srv.Client(), nil).
		Dispatch(context.Background(), jobs.Request{JobID: "j1", JobType: "typeset"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "queue full")
}

func TestHTTPDispatcher_ForwardedBearerMissing(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	err := jobs.NewHTTPDispatcher(srv.URL, jobs.ForwardedBearer{}, srv.Client(), nil).
		Dispatch(context.Background(), jobs.Request{JobID: "j1"})
	require.ErrorIs(t, err, jobs.ErrNoForwardedToken)
	assert.False(t, called)
}

func TestForwardedBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	ctx := jobs.WithBearerToken(context.Background(), "caller-token")

	require.NoError(t, jobs.ForwardedBearer{}.Authorize(ctx, req))
	assert.Equal(t, "Bearer caller-token", req.Header.Get("Authorization"))
}

func TestServiceToken(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auth := &jobs.ServiceToken{
		Secret:   []byte("shh"),
		Issuer:   "galley",
		Audience: "jobs",
		TTL:      2 * time.Minute,
		Now:      func() time.Time { return fixed },
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, auth.Authorize(context.Background(), req))

	raw, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	require.True(t, ok)

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("shh"), nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return fixed.Add(time.Minute) }),
		jwt.WithAudience("jobs"),
		jwt.WithIssuer("galley"))
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(2*time.Minute), claims.ExpiresAt.Time.UTC())
	assert.NotEmpty(t, claims.ID)
}

func TestNewAuthorizer(t *testing.T) {
	a, err := jobs.NewAuthorizer(jobs.AuthConfig{})
	require.NoError(t, err)
	assert.IsType(t, jobs.NoAuth{}, a)

	a, err = jobs.NewAuthorizer(jobs.AuthConfig{Kind: jobs.AuthAPIKey, APIKey: "k", APIKeyHeader: "X-Job-Key"})
	require.NoError(t, err)
	assert.Equal(t, jobs.APIKey{Header: "X-Job-Key", Key: "k"}, a)

	_, err = jobs.NewAuthorizer(jobs.AuthConfig{Kind: jobs.AuthAPIKey})
	assert.Error(t, err)

	_, err = jobs.NewAuthorizer(jobs.AuthConfig{Kind: jobs.AuthServiceToken})
	assert.Error(t, err)

	_, err = jobs.NewAuthorizer(jobs.AuthConfig{Kind: "kerberos"})
	assert.ErrorIs(t, err, jobs.ErrUnknownAuthKind)
}
