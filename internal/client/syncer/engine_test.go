package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/driftsync/internal/client/credentials"
	"github.com/driftnotes/driftsync/internal/client/models"
	"github.com/driftnotes/driftsync/internal/client/remote"
	"github.com/driftnotes/driftsync/internal/client/store"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// fakeSource vends fixed credentials and counts mints.
type fakeSource struct {
	mu          sync.Mutex
	mints       int
	invalidated int
}

func (f *fakeSource) Get(_ context.Context) (credentials.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mints++
	return credentials.Credential{
		AuthToken:   "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
		DatabaseURL: "postgres://db.example/notes",
	}, nil
}

func (f *fakeSource) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

// fakeRemote is an in-memory remote store with the same push guard as the
// real one.
type fakeRemote struct {
	mu       sync.Mutex
	records  map[string]models.Record
	pullErrs []error
	pushErrs []error
	pulls    int
	pulled   chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: map[string]models.Record{}}
}

func (f *fakeRemote) connector() Connector {
	return func(_ context.Context, _ credentials.Credential) (remote.Store, error) {
		return f, nil
	}
}

func (f *fakeRemote) seed(rec models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

func (f *fakeRemote) get(id string) (models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeRemote) PullSince(_ context.Context, since int64) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pulled != nil {
		select {
		case f.pulled <- struct{}{}:
		default:
		}
	}
	if len(f.pullErrs) > 0 {
		err := f.pullErrs[0]
		f.pullErrs = f.pullErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	var out []models.Record
	for _, rec := range f.records {
		if rec.UpdatedAt > since {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRemote) Push(_ context.Context, records []models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		if err != nil {
			return err
		}
	}

	for _, rec := range records {
		cur, ok := f.records[rec.ID]
		if !ok || rec.UpdatedAt > cur.UpdatedAt ||
			(rec.UpdatedAt == cur.UpdatedAt && rec.Content > cur.Content) ||
			(rec.UpdatedAt == cur.UpdatedAt && rec.Content == cur.Content && rec.Deleted && !cur.Deleted) {
			f.records[rec.ID] = rec
		}
	}
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func newTestEngine(t *testing.T, rem *fakeRemote) (*Engine, *store.RecordRepository, *fakeSource) {
	t.Helper()

	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	local := store.NewRecordRepository(db)
	source := &fakeSource{}
	engine := NewEngine(local, source, rem.connector(), time.Hour, logging.Nop())
	return engine, local, source
}

func TestSync_PullsRemoteIntoEmptyStore(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "hello", UpdatedAt: 100})
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, engine.Sync(ctx))

	got, err := local.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	cp, err := local.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cp)
}

func TestSync_PushesDirtyRecords(t *testing.T) {
	rem := newFakeRemote()
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "local", UpdatedAt: 100}))
	require.NoError(t, engine.Sync(ctx))

	pushed, ok := rem.get("r1")
	require.True(t, ok)
	assert.Equal(t, "local", pushed.Content)

	dirty, err := local.ListDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestSync_RemoteWinsConflict(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "b", UpdatedAt: 150})
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "a", UpdatedAt: 100}))
	require.NoError(t, engine.Sync(ctx))

	got, err := local.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Content)
	assert.Equal(t, int64(150), got.UpdatedAt)

	remoteRec, _ := rem.get("r1")
	assert.Equal(t, "b", remoteRec.Content, "both replicas converge on the later write")

	conflicts, err := local.ListConflicts(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(150), conflicts[0].WinnerUpdatedAt)
	assert.Equal(t, int64(100), conflicts[0].LoserUpdatedAt)
	assert.Equal(t, models.StrategyLWW, conflicts[0].Strategy)
}

func TestSync_LocalWinsConflict(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "a", UpdatedAt: 100})
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "b", UpdatedAt: 150}))
	require.NoError(t, engine.Sync(ctx))

	got, err := local.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Content)

	remoteRec, _ := rem.get("r1")
	assert.Equal(t, "b", remoteRec.Content, "winning local copy is pushed")

	conflicts, err := local.ListConflicts(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(150), conflicts[0].WinnerUpdatedAt)
}

func TestSync_TombstoneReplicates(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", UpdatedAt: 200, Deleted: true})
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "text", UpdatedAt: 100}))
	require.NoError(t, engine.Sync(ctx))

	got, err := local.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	live, err := local.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestSync_StaleCredentialRefreshesOnce(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "x", UpdatedAt: 100})
	rem.pullErrs = []error{common.ErrStaleCredential}
	engine, local, source := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, engine.Sync(ctx))

	got, err := local.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
	assert.Equal(t, 1, source.invalidated)
	assert.Equal(t, 2, source.mints)
}

func TestSync_SecondRejectionIsSyncUnavailable(t *testing.T) {
	rem := newFakeRemote()
	rem.pullErrs = []error{common.ErrStaleCredential, common.ErrStaleCredential}
	engine, _, source := newTestEngine(t, rem)

	err := engine.Sync(context.Background())
	assert.ErrorIs(t, err, common.ErrSyncUnavailable)
	assert.Equal(t, 1, source.invalidated, "refresh happens exactly once per cycle")
}

func TestSync_CheckpointHeldBackOnPushFailure(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "remote", UpdatedAt: 500})
	rem.pushErrs = []error{assertErr}
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r2", Content: "local", UpdatedAt: 100}))
	require.Error(t, engine.Sync(ctx))

	cp, err := local.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp, "checkpoint must not advance past an unconfirmed push")

	dirty, err := local.ListDirty(ctx)
	require.NoError(t, err)
	assert.Len(t, dirty, 1, "failed push keeps the record queued")
}

func TestSync_EditDuringPushStaysDirty(t *testing.T) {
	rem := newFakeRemote()
	engine, local, _ := newTestEngine(t, rem)
	ctx := context.Background()

	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "v1", UpdatedAt: 100}))

	// Simulate an edit landing while the cycle pushes: the push carries
	// v1, the store already holds v2.
	require.NoError(t, local.Save(ctx, &models.Record{ID: "r1", Content: "v2", UpdatedAt: 200}))
	require.NoError(t, engine.Sync(ctx))

	dirty, err := local.ListDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty, "v2 went out with this cycle")

	remoteRec, _ := rem.get("r1")
	assert.Equal(t, "v2", remoteRec.Content)
}

func TestSync_CancelledContextStops(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(models.Record{ID: "r1", Content: "x", UpdatedAt: 100})
	engine, local, _ := newTestEngine(t, rem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.Sync(ctx)
	assert.Error(t, err)

	cp, cpErr := local.Checkpoint(context.Background())
	require.NoError(t, cpErr)
	assert.Equal(t, int64(0), cp)
}

func TestRun_KickTriggersCycle(t *testing.T) {
	rem := newFakeRemote()
	rem.pulled = make(chan struct{}, 1)
	engine, _, _ := newTestEngine(t, rem)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	engine.Kick()
	select {
	case <-rem.pulled:
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not trigger a cycle")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestKick_NeverBlocks(t *testing.T) {
	rem := newFakeRemote()
	engine, _, _ := newTestEngine(t, rem)

	// No cycle is draining the channel; repeated kicks coalesce.
	for i := 0; i < 10; i++ {
		engine.Kick()
	}
}

var assertErr = &pushError{}

type pushError struct{}

func (*pushError) Error() string { return "push failed" }
