package scope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
	"github.com/rpggio/galley/internal/repository/mocks"
)

func TestHasScopes(t *testing.T) {
	ctx := context.Background()
	ed := scope.Principal{TenantID: "site-a", ActorID: "ed"}

	grants := &mocks.GrantRepository{}
	grants.On("ListGrants", ctx, "site-a", "ed").Return([]string{"submission:submit", "submission:publish"}, nil)
	svc := scope.NewService(grants, nil, nil)

	ok, err := svc.HasScopes(ctx, ed, "site-a", nil)
	require.NoError(t, err)
	require.True(t, ok, "empty requirement always passes")

	ok, err = svc.HasScopes(ctx, ed, "site-a", []string{"submission:publish"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasScopes(ctx, ed, "site-a", []string{"submission:publish", "submission:decide"})
	require.NoError(t, err)
	require.False(t, ok, "all scopes are required")

	ok, err = svc.HasScopes(ctx, ed, "site-b", []string{"submission:publish"})
	require.NoError(t, err)
	require.False(t, ok, "grants never cross tenants")
	grants.AssertNumberOfCalls(t, "ListGrants", 2)
}

func TestHasScopes_Wildcard(t *testing.T) {
	ctx := context.Background()
	grants := &mocks.GrantRepository{}
	grants.On("ListGrants", ctx, "site-a", "root").Return([]string{scope.Wildcard}, nil)

	ok, err := scope.NewService(grants, nil, nil).HasScopes(ctx, scope.Principal{TenantID: "site-a", ActorID: "root"}, "site-a", []string{"anything"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolvePrincipal(t *testing.T) {
	ctx := context.Background()
	keys := &mocks.KeyRepository{}
	keys.On("Resolve", ctx, scope.HashToken("good")).Return(&scope.APIKey{TenantID: "site-a", ActorID: "ed"}, nil)
	keys.On("Resolve", ctx, scope.HashToken("bad")).Return(nil, repository.ErrNotFound)
	svc := scope.NewService(nil, keys, nil)

	p, err := svc.ResolvePrincipal(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, scope.Principal{TenantID: "site-a", ActorID: "ed"}, p)

	_, err = svc.ResolvePrincipal(ctx, "bad")
	require.ErrorIs(t, err, scope.ErrUnauthorized)

	_, err = svc.ResolvePrincipal(ctx, "")
	require.ErrorIs(t, err, scope.ErrUnauthorized)
}

func TestAddAPIKey_StoresOnlyHash(t *testing.T) {
	ctx := context.Background()
	keys := &mocks.KeyRepository{}
	var storedHash string
	keys.On("Add", ctx, mock.Anything).Run(func(args mock.Arguments) {
		storedHash = args.Get(1).(*scope.APIKey).KeyHash
	}).Return(nil)

	token, err := scope.NewService(nil, keys, nil).AddAPIKey(ctx, scope.Principal{TenantID: "site-a", ActorID: "ed"}, "ci")
	require.NoError(t, err)
	require.NotEqual(t, token, storedHash)
	require.Equal(t, scope.HashToken(token), storedHash)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := scope.PrincipalFromContext(context.Background())
	require.False(t, ok)

	ctx := scope.WithPrincipal(context.Background(), scope.Principal{TenantID: "t", ActorID: "a"})
	p, ok := scope.PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "a", p.ActorID)
}
