package notes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/driftsync/internal/client/store"
	"github.com/driftnotes/driftsync/internal/common"
)

type countingKicker struct{ kicks int }

func (k *countingKicker) Kick() { k.kicks++ }

func newService(t *testing.T) (*Service, *countingKicker) {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kicker := &countingKicker{}
	return NewService(store.NewRecordRepository(db), kicker), kicker
}

func TestCreate(t *testing.T) {
	svc, kicker := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "first note")
	require.NoError(t, err)

	_, err = uuid.Parse(rec.ID)
	assert.NoError(t, err, "ids are uuids")
	assert.NotZero(t, rec.UpdatedAt)
	assert.Equal(t, 1, kicker.kicks)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "first note", got.Content)
}

func TestUpdate_BumpsTimestamp(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "v1")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.UnixMilli(rec.UpdatedAt + 1000) }
	updated, err := svc.Update(ctx, rec.ID, "v2")
	require.NoError(t, err)

	assert.Equal(t, "v2", updated.Content)
	assert.Greater(t, updated.UpdatedAt, rec.UpdatedAt)
}

func TestUpdate_MissingRecord(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Update(context.Background(), uuid.NewString(), "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete_RemovesFromList(t *testing.T) {
	svc, kicker := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "doomed")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rec.ID))

	live, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	// Tombstone survives with its id.
	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	assert.Equal(t, 2, kicker.kicks)
}

func TestUpdate_DeletedRecordRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "doomed")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rec.ID))

	_, err = svc.Update(ctx, rec.ID, "revive")
	assert.Error(t, err)
}

func TestList_OrderedByRecency(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	older, err := svc.Create(ctx, "older")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Second) }
	newer, err := svc.Create(ctx, "newer")
	require.NoError(t, err)

	live, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, newer.ID, live[0].ID)
	assert.Equal(t, older.ID, live[1].ID)
}
