package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/jobs"
)

type testResolver struct {
	principals map[string]scope.Principal
	err        error
}

func (r *testResolver) ResolvePrincipal(_ context.Context, token string) (scope.Principal, error) {
	if r.err != nil {
		return scope.Principal{}, r.err
	}
	p, ok := r.principals[token]
	if !ok {
		return scope.Principal{}, scope.ErrUnauthorized
	}
	return p, nil
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &testResolver{principals: map[string]scope.Principal{
		"token": {TenantID: "tenant1", ActorID: "alice"},
	}}

	handler := AuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		require.NoError(t, err)
		require.Equal(t, scope.Principal{TenantID: "tenant1", ActorID: "alice"}, p)
		forwarded, ok := jobs.BearerTokenFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "token", forwarded)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Invalid(t *testing.T) {
	cases := map[string]struct {
		header   string
		resolver *testResolver
	}{
		"missing header":  {header: "", resolver: &testResolver{}},
		"not bearer":      {header: "Basic abc", resolver: &testResolver{}},
		"unknown token":   {header: "Bearer nope", resolver: &testResolver{}},
		"resolver failed": {header: "Bearer token", resolver: &testResolver{err: errors.New("db down")}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(tc.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.False(t, called)
		})
	}
}

func TestStaticPrincipal(t *testing.T) {
	want := scope.Principal{TenantID: "default", ActorID: "local"}
	handler := StaticPrincipal(want)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := principalFrom(r)
		require.NoError(t, err)
		require.Equal(t, want, p)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("loading: %w", record.ErrRecordNotFound), http.StatusNotFound},
		{workflow.ErrSubmissionNotFound, http.StatusNotFound},
		{access.ErrTokenNotFound, http.StatusNotFound},
		{record.ErrConflict, http.StatusConflict},
		{workflow.ErrConflict, http.StatusConflict},
		{workflow.ErrForbidden, http.StatusForbidden},
		{workflow.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{access.ErrValidation, http.StatusBadRequest},
		{errBadRequest, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
