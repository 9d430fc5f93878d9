package mcp

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/jobs"
)

type staticResolver map[string]scope.Principal

func (r staticResolver) ResolvePrincipal(_ context.Context, token string) (scope.Principal, error) {
	p, ok := r[token]
	if !ok {
		return scope.Principal{}, scope.ErrUnauthorized
	}
	return p, nil
}

func requestWithAuth(header string) *sdkmcp.CallToolRequest {
	h := http.Header{}
	if header != "" {
		h.Set("Authorization", header)
	}
	return &sdkmcp.CallToolRequest{Extra: &sdkmcp.RequestExtra{Header: h}}
}

func TestAuthMiddleware(t *testing.T) {
	alice := scope.Principal{TenantID: "site-a", ActorID: "alice"}
	var seen scope.Principal
	var forwarded string
	next := func(ctx context.Context, _ string, _ sdkmcp.Request) (sdkmcp.Result, error) {
		seen, _ = scope.PrincipalFromContext(ctx)
		forwarded, _ = jobs.BearerTokenFromContext(ctx)
		return nil, nil
	}
	handler := authMiddleware(staticResolver{"gk_alice": alice})(next)

	_, err := handler(context.Background(), "tools/call", requestWithAuth("Bearer gk_alice"))
	require.NoError(t, err)
	require.Equal(t, alice, seen)
	require.Equal(t, "gk_alice", forwarded)

	for _, header := range []string{"", "Bearer ", "Bearer gk_bob", "Token gk_alice"} {
		_, err := handler(context.Background(), "tools/call", requestWithAuth(header))
		require.True(t, errors.Is(err, errUnauthorized), "header %q", header)
	}

	// The handshake needs no credentials.
	_, err = handler(context.Background(), "initialize", requestWithAuth(""))
	require.NoError(t, err)
}

func TestNoAuthMiddleware(t *testing.T) {
	def := scope.Principal{TenantID: "default", ActorID: "local"}
	var seen scope.Principal
	handler := noAuthMiddleware(def)(func(ctx context.Context, _ string, _ sdkmcp.Request) (sdkmcp.Result, error) {
		seen, _ = scope.PrincipalFromContext(ctx)
		return nil, nil
	})

	_, err := handler(context.Background(), "tools/call", requestWithAuth(""))
	require.NoError(t, err)
	require.Equal(t, def, seen)
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Equal(t, "UNAUTHORIZED", MapError(errUnauthorized).Code)
	require.Equal(t, "INVALID_INPUT", MapError(errInvalidArgument).Code)

	internal := MapError(errors.New("pq: connection refused"))
	require.Equal(t, "INTERNAL", internal.Code)
	require.NotContains(t, internal.Error(), "connection refused")
}
