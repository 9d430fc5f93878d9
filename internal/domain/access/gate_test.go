package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/repository"
	"github.com/rpggio/galley/internal/repository/mocks"
)

var owner = scope.Principal{TenantID: "site-a", ActorID: "ed"}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func newGate() (*access.Gate, *mocks.TokenRepository, *mocks.AccessLogRepository, *mocks.ActivityRepository, *mocks.Transactor) {
	tokens := &mocks.TokenRepository{}
	log := &mocks.AccessLogRepository{}
	activities := &mocks.ActivityRepository{}
	tx := &mocks.Transactor{}
	return access.NewGate(tokens, log, activities, tx, nil), tokens, log, activities, tx
}

func TestValidateAndLogAccess_CheckOrder(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name  string
		token access.Token
		used  int
		want  access.Result
	}{
		{name: "revoked beats expired", token: access.Token{Revoked: true, ExpiresAt: &past, AccessLimit: intPtr(1)}, used: 5,
			want: access.Result{Reason: access.ReasonRevoked}},
		{name: "expired beats limit", token: access.Token{ExpiresAt: &past, AccessLimit: intPtr(1)}, used: 5,
			want: access.Result{Reason: access.ReasonExpired}},
		{name: "limit reached", token: access.Token{ExpiresAt: &future, AccessLimit: intPtr(2)}, used: 2,
			want: access.Result{Reason: access.ReasonLimitReached}},
		{name: "under limit", token: access.Token{AccessLimit: intPtr(2)}, used: 1,
			want: access.Result{Valid: true}},
		{name: "unlimited", token: access.Token{},
			want: access.Result{Valid: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, tokens, log, _, tx := newGate()
			tok := tc.token
			tok.ID, tok.TenantID = "tok1", "site-a"
			tokens.On("LockForAccess", mock.Anything, "tok1").Return(&tok, nil)
			log.On("CountSuccessful", mock.Anything, "tok1").Return(tc.used, nil).Maybe()
			log.On("Append", mock.Anything, mock.MatchedBy(func(e *access.LogEntry) bool {
				return e.TokenID == "tok1" && e.TenantID == "site-a" && e.Success == tc.want.Valid && e.Reason == tc.want.Reason
			})).Return(nil).Once()

			got, err := gate.ValidateAndLogAccess(context.Background(), "tok1", access.Attempt{IP: "198.51.100.4", UserAgent: "curl"})
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, 1, tx.Calls)
			log.AssertExpectations(t)
		})
	}
}

func TestValidateAndLogAccess_UnknownToken(t *testing.T) {
	gate, tokens, log, _, _ := newGate()
	tokens.On("LockForAccess", mock.Anything, "missing").Return(nil, repository.ErrNotFound)

	_, err := gate.ValidateAndLogAccess(context.Background(), "missing", access.Attempt{})
	require.ErrorIs(t, err, access.ErrTokenNotFound)
	log.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestCreate_RejectsBadLimitsBeforePersisting(t *testing.T) {
	gate, tokens, _, _, tx := newGate()
	for _, limit := range []int{0, -3} {
		_, err := gate.Create(context.Background(), owner, access.CreateRequest{Resource: "proof", AccessLimit: intPtr(limit)})
		require.ErrorIs(t, err, access.ErrValidation)
	}
	require.Zero(t, tx.Calls)
	tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_LogsActivity(t *testing.T) {
	gate, tokens, _, activities, _ := newGate()
	tokens.On("Create", mock.Anything, mock.MatchedBy(func(tok *access.Token) bool {
		return tok.TenantID == "site-a" && tok.CreatedBy == "ed" && *tok.AccessLimit == 3
	})).Return(nil)
	activities.On("Log", mock.Anything, "site-a", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.Kind == activity.KindTokenCreated && e.SubjectType == activity.SubjectAccessToken
	})).Return(nil)

	tok, err := gate.Create(context.Background(), owner, access.CreateRequest{
		Resource: "proof", AccessLimit: intPtr(3), ExpiresAt: timePtr(time.Now().Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, tok.ID)
	activities.AssertExpectations(t)
}

func TestRevoke_Idempotent(t *testing.T) {
	gate, tokens, _, activities, _ := newGate()
	tokens.On("Get", mock.Anything, "site-a", "tok1").Return(&access.Token{ID: "tok1", TenantID: "site-a", Revoked: true}, nil)

	tok, err := gate.Revoke(context.Background(), owner, "tok1")
	require.NoError(t, err)
	require.True(t, tok.Revoked)
	tokens.AssertNotCalled(t, "SetRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	activities.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything)
}

func TestReactivate_FlipsFlag(t *testing.T) {
	gate, tokens, _, activities, _ := newGate()
	tokens.On("Get", mock.Anything, "site-a", "tok1").Return(&access.Token{ID: "tok1", TenantID: "site-a", Revoked: true}, nil)
	tokens.On("SetRevoked", mock.Anything, "site-a", "tok1", false).Return(nil)
	activities.On("Log", mock.Anything, "site-a", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.Kind == activity.KindTokenReactivated
	})).Return(nil)

	tok, err := gate.Reactivate(context.Background(), owner, "tok1")
	require.NoError(t, err)
	require.False(t, tok.Revoked)
}

func TestReactivate_ActiveTokenChangesNothing(t *testing.T) {
	gate, tokens, _, activities, _ := newGate()
	tokens.On("Get", mock.Anything, "site-a", "tok1").Return(&access.Token{ID: "tok1", TenantID: "site-a"}, nil)

	tok, err := gate.Reactivate(context.Background(), owner, "tok1")
	require.NoError(t, err)
	require.False(t, tok.Revoked)
	tokens.AssertNotCalled(t, "SetRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	activities.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_OtherTenant(t *testing.T) {
	gate, tokens, _, _, _ := newGate()
	tokens.On("Get", mock.Anything, "site-b", "tok1").Return(nil, repository.ErrNotFound)

	err := gate.Delete(context.Background(), scope.Principal{TenantID: "site-b", ActorID: "x"}, "tok1")
	require.ErrorIs(t, err, access.ErrTokenNotFound)
}

func TestParseAccessLimit(t *testing.T) {
	n, err := access.ParseAccessLimit("5")
	require.NoError(t, err)
	require.Equal(t, 5, *n)

	n, err = access.ParseAccessLimit("")
	require.NoError(t, err)
	require.Nil(t, n)

	for _, bad := range []string{"1.5", "0", "-1", "ten"} {
		_, err := access.ParseAccessLimit(bad)
		require.ErrorIs(t, err, access.ErrValidation, bad)
	}
}
