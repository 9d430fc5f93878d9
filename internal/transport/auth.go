package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/jobs"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

// PrincipalResolver resolves the caller behind a bearer token.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (scope.Principal, error)
}

// AuthMiddleware enforces bearer token authentication. The resolved
// principal and the raw token are stored in the request context; the token
// is kept so job requests can forward it.
func AuthMiddleware(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			principal, err := resolver.ResolvePrincipal(r.Context(), token)
			if err != nil || principal.IsZero() {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			ctx := scope.WithPrincipal(r.Context(), principal)
			ctx = jobs.WithBearerToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaticPrincipal runs every request as principal. It is used when auth is
// disabled.
func StaticPrincipal(principal scope.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := scope.WithPrincipal(r.Context(), principal)
			if token := bearerToken(r); token != "" {
				ctx = jobs.WithBearerToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func principalFrom(r *http.Request) (scope.Principal, error) {
	p, ok := scope.PrincipalFromContext(r.Context())
	if !ok || p.IsZero() {
		return scope.Principal{}, ErrUnauthorized
	}
	return p, nil
}
