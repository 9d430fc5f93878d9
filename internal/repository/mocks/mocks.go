package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/rpggio/galley/internal/domain/access"
	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/domain/scope"
	"github.com/rpggio/galley/internal/domain/workflow"
	"github.com/rpggio/galley/internal/jobs"
	"github.com/rpggio/galley/internal/notify"
)

// Transactor runs fn directly and counts how many transactions were opened.
type Transactor struct {
	mu    sync.Mutex
	Calls int
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.Calls++
	t.mu.Unlock()
	return fn(ctx)
}

// RecordRepository is a mock for record.RecordRepository.
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Create(ctx context.Context, tenantID string, rec *record.Record) error {
	args := m.Called(ctx, tenantID, rec)
	return args.Error(0)
}

func (m *RecordRepository) Get(ctx context.Context, tenantID, id string) (*record.Record, error) {
	args := m.Called(ctx, tenantID, id)
	if rec, ok := args.Get(0).(*record.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) Update(ctx context.Context, tenantID string, rec *record.Record, expectedOCC int64) error {
	args := m.Called(ctx, tenantID, rec, expectedOCC)
	return args.Error(0)
}

func (m *RecordRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, tenantID, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// SubmissionRepository is a mock for workflow.SubmissionRepository.
type SubmissionRepository struct {
	mock.Mock
}

func (m *SubmissionRepository) Create(ctx context.Context, tenantID string, sub *workflow.Submission) error {
	args := m.Called(ctx, tenantID, sub)
	return args.Error(0)
}

func (m *SubmissionRepository) Get(ctx context.Context, tenantID, id string) (*workflow.Submission, error) {
	args := m.Called(ctx, tenantID, id)
	if sub, ok := args.Get(0).(*workflow.Submission); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SubmissionRepository) Update(ctx context.Context, tenantID string, sub *workflow.Submission, expectedOCC int64) error {
	args := m.Called(ctx, tenantID, sub, expectedOCC)
	return args.Error(0)
}

// SlugAssigner is a mock for workflow.SlugAssigner.
type SlugAssigner struct {
	mock.Mock
}

func (m *SlugAssigner) AssignSlug(ctx context.Context, sub *workflow.Submission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

// ScopeChecker is a mock for scope.Checker.
type ScopeChecker struct {
	mock.Mock
}

func (m *ScopeChecker) HasScopes(ctx context.Context, principal scope.Principal, tenantID string, scopes []string) (bool, error) {
	args := m.Called(ctx, principal, tenantID, scopes)
	return args.Bool(0), args.Error(1)
}

// GrantRepository is a mock for scope.GrantRepository.
type GrantRepository struct {
	mock.Mock
}

func (m *GrantRepository) Grant(ctx context.Context, tenantID, actorID, s string) error {
	args := m.Called(ctx, tenantID, actorID, s)
	return args.Error(0)
}

func (m *GrantRepository) Revoke(ctx context.Context, tenantID, actorID, s string) error {
	args := m.Called(ctx, tenantID, actorID, s)
	return args.Error(0)
}

func (m *GrantRepository) ListGrants(ctx context.Context, tenantID, actorID string) ([]string, error) {
	args := m.Called(ctx, tenantID, actorID)
	if list, ok := args.Get(0).([]string); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// KeyRepository is a mock for scope.KeyRepository.
type KeyRepository struct {
	mock.Mock
}

func (m *KeyRepository) Add(ctx context.Context, key *scope.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *KeyRepository) Resolve(ctx context.Context, keyHash string) (*scope.APIKey, error) {
	args := m.Called(ctx, keyHash)
	if key, ok := args.Get(0).(*scope.APIKey); ok {
		return key, args.Error(1)
	}
	return nil, args.Error(1)
}

// TokenRepository is a mock for access.TokenRepository.
type TokenRepository struct {
	mock.Mock
}

func (m *TokenRepository) Create(ctx context.Context, tok *access.Token) error {
	args := m.Called(ctx, tok)
	return args.Error(0)
}

func (m *TokenRepository) Get(ctx context.Context, tenantID, id string) (*access.Token, error) {
	args := m.Called(ctx, tenantID, id)
	if tok, ok := args.Get(0).(*access.Token); ok {
		return tok, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TokenRepository) LockForAccess(ctx context.Context, id string) (*access.Token, error) {
	args := m.Called(ctx, id)
	if tok, ok := args.Get(0).(*access.Token); ok {
		return tok, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TokenRepository) SetRevoked(ctx context.Context, tenantID, id string, revoked bool) error {
	args := m.Called(ctx, tenantID, id, revoked)
	return args.Error(0)
}

func (m *TokenRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// AccessLogRepository is a mock for access.LogRepository.
type AccessLogRepository struct {
	mock.Mock
}

func (m *AccessLogRepository) Append(ctx context.Context, entry *access.LogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AccessLogRepository) CountSuccessful(ctx context.Context, tokenID string) (int, error) {
	args := m.Called(ctx, tokenID)
	return args.Int(0), args.Error(1)
}

func (m *AccessLogRepository) List(ctx context.Context, tenantID, tokenID string, limit int) ([]access.LogEntry, error) {
	args := m.Called(ctx, tenantID, tokenID, limit)
	if list, ok := args.Get(0).([]access.LogEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Dispatcher is a mock for jobs.Dispatcher.
type Dispatcher struct {
	mock.Mock
}

func (m *Dispatcher) Dispatch(ctx context.Context, req jobs.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// Notifier is a mock for notify.Notifier.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) StatusChanged(ctx context.Context, event notify.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
