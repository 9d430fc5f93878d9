package record_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/repository"
	"github.com/rpggio/galley/internal/repository/mocks"
)

func fastPolicy(n int) record.RetryPolicy {
	return record.RetryPolicy{MaxRetries: n, Delay: time.Millisecond}
}

func stored(payload string, occ int64) *record.Record {
	return &record.Record{ID: "r1", TenantID: "tenant1", Payload: json.RawMessage(payload), OCC: occ}
}

func TestUpdate_AppliesWithConditionalWrite(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	activities := &mocks.ActivityRepository{}
	tx := &mocks.Transactor{}

	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{"title":"Old"}`, 4), nil)
	records.On("Update", mock.Anything, "tenant1", mock.MatchedBy(func(r *record.Record) bool {
		return r.OCC == 5 && string(r.Payload) == `{"title":"New"}`
	}), int64(4)).Return(nil)
	activities.On("Log", mock.Anything, "tenant1", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.Kind == activity.KindRecordUpdated && e.ActorID == "ed" && e.SubjectID == "r1"
	})).Return(nil)

	svc := record.NewService(records, activities, tx, fastPolicy(5), nil)
	rec, err := svc.Update(ctx, "tenant1", "r1", record.SetField("title", json.RawMessage(`"New"`)), record.WithActor("ed"))
	require.NoError(t, err)
	require.Equal(t, int64(5), rec.OCC)
	require.Equal(t, 1, tx.Calls)
	records.AssertExpectations(t)
	activities.AssertExpectations(t)
}

func TestUpdate_NoChangeIssuesNoWrite(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	tx := &mocks.Transactor{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{"title":"Same"}`, 2), nil)

	svc := record.NewService(records, nil, tx, fastPolicy(5), nil)
	rec, err := svc.Update(ctx, "tenant1", "r1", func(json.RawMessage) (record.Mutation, error) {
		return record.NoChange{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.OCC)
	require.Zero(t, tx.Calls)
	records.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil).Once()
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 2), nil).Once()
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(1)).Return(repository.ErrConflict).Once()
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(2)).Return(nil).Once()

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	rec, err := svc.Update(ctx, "tenant1", "r1", record.Replace(json.RawMessage(`{"v":1}`)))
	require.NoError(t, err)
	require.Equal(t, int64(3), rec.OCC)
	records.AssertNumberOfCalls(t, "Update", 2)
}

func TestUpdate_AlwaysLosingWriterGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(1)).Return(repository.ErrConflict)

	calls := 0
	modify := func(json.RawMessage) (record.Mutation, error) {
		calls++
		return record.Apply{Payload: json.RawMessage(`{"v":1}`)}, nil
	}

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	_, err := svc.Update(ctx, "tenant1", "r1", modify, record.WithMaxRetries(3))
	require.ErrorIs(t, err, record.ErrConflict)
	require.Contains(t, err.Error(), "3 attempts")
	records.AssertNumberOfCalls(t, "Update", 3)
	require.Equal(t, 3, calls)
}

func TestUpdate_ZeroPolicyUsesDefaultAttemptsWithoutWaiting(t *testing.T) {
	ctx := context.Background()
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(1)).Return(repository.ErrConflict)

	svc := record.NewService(records, nil, &mocks.Transactor{}, record.RetryPolicy{}, nil)
	start := time.Now()
	_, err := svc.Update(ctx, "tenant1", "r1", record.SetField("v", json.RawMessage(`1`)))
	require.ErrorIs(t, err, record.ErrConflict)
	records.AssertNumberOfCalls(t, "Update", record.DefaultMaxRetries)
	// DefaultRetryDelay between every attempt would take well over this.
	require.Less(t, time.Since(start), record.DefaultRetryDelay)
}

func TestUpdate_NotFound(t *testing.T) {
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(nil, repository.ErrNotFound)

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	_, err := svc.Update(context.Background(), "tenant1", "r1", record.Replace(json.RawMessage(`{}`)))
	require.ErrorIs(t, err, record.ErrRecordNotFound)
}

func TestUpdate_DeletedBetweenReadAndWrite(t *testing.T) {
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(1)).Return(repository.ErrNotFound)

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	_, err := svc.Update(context.Background(), "tenant1", "r1", record.Replace(json.RawMessage(`{"a":1}`)))
	require.ErrorIs(t, err, record.ErrRecordNotFound)
	records.AssertNumberOfCalls(t, "Update", 1)
}

func TestUpdate_ModifierErrorAbortsWithoutWrite(t *testing.T) {
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)
	boom := errors.New("boom")

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	_, err := svc.Update(context.Background(), "tenant1", "r1", func(json.RawMessage) (record.Mutation, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	records.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)
	records.On("Update", mock.Anything, "tenant1", mock.Anything, int64(1)).
		Run(func(mock.Arguments) { cancel() }).
		Return(repository.ErrConflict)

	svc := record.NewService(records, nil, &mocks.Transactor{}, record.RetryPolicy{MaxRetries: 5, Delay: time.Hour}, nil)
	_, err := svc.Update(ctx, "tenant1", "r1", record.Replace(json.RawMessage(`{"a":1}`)))
	require.ErrorIs(t, err, context.Canceled)
	records.AssertNumberOfCalls(t, "Update", 1)
}

func TestUpdate_InvalidPayloadRejected(t *testing.T) {
	records := &mocks.RecordRepository{}
	records.On("Get", mock.Anything, "tenant1", "r1").Return(stored(`{}`, 1), nil)

	svc := record.NewService(records, nil, &mocks.Transactor{}, fastPolicy(5), nil)
	_, err := svc.Update(context.Background(), "tenant1", "r1", func(json.RawMessage) (record.Mutation, error) {
		return record.Apply{Payload: json.RawMessage(`{not json`)}, nil
	})
	require.ErrorIs(t, err, record.ErrInvalidInput)
}
