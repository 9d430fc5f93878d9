package sqlite

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/galley/internal/domain/activity"
	"github.com/rpggio/galley/internal/domain/record"
	"github.com/rpggio/galley/internal/repository"
)

func insertRecord(t *testing.T, repo *RecordRepository, tenantID, id, payload string) *record.Record {
	t.Helper()
	now := time.Now().UTC()
	rec := &record.Record{ID: id, Payload: json.RawMessage(payload), OCC: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(context.Background(), tenantID, rec))
	return rec
}

func TestRecordRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewRecordRepository(db)
	insertRecord(t, repo, "tenant1", "r1", `{"title":"Draft"}`)

	loaded, err := repo.Get(context.Background(), "tenant1", "r1")
	require.NoError(t, err)
	require.Equal(t, "tenant1", loaded.TenantID)
	require.Equal(t, int64(1), loaded.OCC)
	require.JSONEq(t, `{"title":"Draft"}`, string(loaded.Payload))
}

func TestRecordRepository_TenantIsolation(t *testing.T) {
	db := NewTestDB(t)
	repo := NewRecordRepository(db)
	insertRecord(t, repo, "tenant1", "r1", `{}`)

	_, err := repo.Get(context.Background(), "tenant2", "r1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRecordRepository_UpdateChecksOCC(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	rec := insertRecord(t, repo, "tenant1", "r1", `{"n":0}`)

	next := *rec
	next.Payload = json.RawMessage(`{"n":1}`)
	next.OCC = 2
	next.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, "tenant1", &next, 1))

	stale := next
	stale.Payload = json.RawMessage(`{"n":99}`)
	stale.OCC = 2
	require.ErrorIs(t, repo.Update(ctx, "tenant1", &stale, 1), repository.ErrConflict)

	missing := next
	missing.ID = "nope"
	require.ErrorIs(t, repo.Update(ctx, "tenant1", &missing, 1), repository.ErrNotFound)

	loaded, err := repo.Get(ctx, "tenant1", "r1")
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.OCC)
	require.JSONEq(t, `{"n":1}`, string(loaded.Payload))
}

func TestRecordRepository_Delete(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	insertRecord(t, repo, "tenant1", "r1", `{}`)

	require.ErrorIs(t, repo.Delete(ctx, "tenant2", "r1"), repository.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "tenant1", "r1"))
	require.ErrorIs(t, repo.Delete(ctx, "tenant1", "r1"), repository.ErrNotFound)
}

func TestRecordService_ConcurrentUpdatesAllLand(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	insertRecord(t, repo, "tenant1", "counter", `{"n":0}`)

	svc := record.NewService(repo, NewActivityRepository(db), db, record.RetryPolicy{MaxRetries: 200, Delay: time.Millisecond}, nil)

	const writers = 8
	increment := func(current json.RawMessage) (record.Mutation, error) {
		var doc struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, err
		}
		return record.Apply{Payload: json.RawMessage(`{"n":` + strconv.Itoa(doc.N+1) + `}`)}, nil
	}

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		actor := "writer-" + strconv.Itoa(i)
		g.Go(func() error {
			_, err := svc.Update(ctx, "tenant1", "counter", increment, record.WithActor(actor))
			return err
		})
	}
	require.NoError(t, g.Wait())

	final, err := repo.Get(ctx, "tenant1", "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1+writers), final.OCC)
	require.JSONEq(t, `{"n":`+strconv.Itoa(writers)+`}`, string(final.Payload))

	kind := activity.KindRecordUpdated
	entries, err := NewActivityRepository(db).List(ctx, "tenant1", activity.ListActivityOptions{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, entries, writers, "one activity entry per landed write")
}

func TestRecordService_NoChangeWritesNothing(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	insertRecord(t, repo, "tenant1", "r1", `{"title":"Same"}`)

	svc := record.NewService(repo, NewActivityRepository(db), db, record.DefaultRetryPolicy(), nil)
	rec, err := svc.Update(ctx, "tenant1", "r1", record.SetField("title", json.RawMessage(`"Same"`)), record.WithActor("editor"))
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.OCC)

	entries, err := NewActivityRepository(db).List(ctx, "tenant1", activity.ListActivityOptions{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
