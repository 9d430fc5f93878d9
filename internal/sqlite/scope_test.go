package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/scope"
)

func TestScopeService_GrantsAndKeys(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	svc := scope.NewService(NewGrantRepository(db), NewAPIKeyRepository(db), nil)
	ed := scope.Principal{TenantID: "site-a", ActorID: "ed"}

	require.NoError(t, svc.Grant(ctx, "site-a", "ed", "submission:publish"))
	require.NoError(t, svc.Grant(ctx, "site-a", "ed", "submission:publish"), "granting twice is a no-op")

	ok, err := svc.HasScopes(ctx, ed, "site-a", []string{"submission:publish"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasScopes(ctx, ed, "site-a", []string{"submission:publish", "submission:accept"})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.Revoke(ctx, "site-a", "ed", "submission:publish"))
	grants, err := svc.Grants(ctx, "site-a", "ed")
	require.NoError(t, err)
	require.Empty(t, grants)

	token, err := svc.AddAPIKey(ctx, ed, "laptop")
	require.NoError(t, err)
	resolved, err := svc.ResolvePrincipal(ctx, token)
	require.NoError(t, err)
	require.Equal(t, ed, resolved)

	_, err = svc.ResolvePrincipal(ctx, "gk_bogus")
	require.ErrorIs(t, err, scope.ErrUnauthorized)
}
