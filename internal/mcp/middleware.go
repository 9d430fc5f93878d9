package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/jobs"
)

var errUnauthorized = errors.New("unauthorized")

// principalFrom returns the caller stored by the auth middleware.
func principalFrom(ctx context.Context) (scope.Principal, error) {
	p, ok := scope.PrincipalFromContext(ctx)
	if !ok || p.IsZero() {
		return scope.Principal{}, errUnauthorized
	}
	return p, nil
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver PrincipalResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Protocol handshake is unauthenticated.
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", errUnauthorized)
			}

			token, ok := strings.CutPrefix(extra.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", errUnauthorized)
			}

			principal, err := resolver.ResolvePrincipal(ctx, token)
			if err != nil || principal.IsZero() {
				return nil, fmt.Errorf("%w: invalid bearer token", errUnauthorized)
			}

			ctx = scope.WithPrincipal(ctx, principal)
			ctx = jobs.WithBearerToken(ctx, token)
			return next(ctx, method, req)
		}
	}
}

// noAuthMiddleware injects a default principal when auth is disabled.
func noAuthMiddleware(principal scope.Principal) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = scope.WithPrincipal(ctx, principal)
			return next(ctx, method, req)
		}
	}
}
