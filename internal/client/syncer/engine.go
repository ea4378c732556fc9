// Package syncer runs the offline-first sync loop: drain local changes to
// the shared database, apply remote changes locally, and resolve divergent
// edits deterministically. User writes never wait on the network; the
// engine reconciles in the background.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftnotes/driftsync/internal/client/credentials"
	"github.com/driftnotes/driftsync/internal/client/models"
	"github.com/driftnotes/driftsync/internal/client/remote"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// Local is the engine's view of the local store.
type Local interface {
	Get(ctx context.Context, id string) (*models.Record, error)
	ApplyRemote(ctx context.Context, rec *models.Record) error
	ListDirty(ctx context.Context) ([]models.Record, error)
	MarkClean(ctx context.Context, id string, updatedAt int64) error
	Checkpoint(ctx context.Context) (int64, error)
	SetCheckpoint(ctx context.Context, value int64) error
	RecordConflict(ctx context.Context, c *models.ConflictResolution) error
}

// CredentialSource vends a valid sync credential.
type CredentialSource interface {
	Get(ctx context.Context) (credentials.Credential, error)
	Invalidate()
}

// Connector opens a remote store with a credential.
type Connector func(ctx context.Context, cred credentials.Credential) (remote.Store, error)

// Engine drives periodic and on-demand sync cycles. Exactly one cycle runs
// at a time; kicks arriving during a cycle coalesce into one follow-up.
type Engine struct {
	local    Local
	source   CredentialSource
	connect  Connector
	interval time.Duration
	logger   logging.Logger
	kick     chan struct{}
	now      func() time.Time
}

// NewEngine builds a sync engine. interval is the periodic cycle cadence.
func NewEngine(local Local, source CredentialSource, connect Connector, interval time.Duration, logger logging.Logger) *Engine {
	return &Engine{
		local:    local,
		source:   source,
		connect:  connect,
		interval: interval,
		logger:   logger.With("module", "syncer"),
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Kick requests a cycle outside the regular cadence, e.g. after a local
// write or on reconnect. Never blocks; kicks during a cycle coalesce.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run loops until the context is cancelled. Cycle failures are logged and
// the loop keeps going; the next tick retries.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.kick:
		}

		if err := e.Sync(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			e.logger.Warn(ctx, "sync cycle failed", "error", err.Error())
		}
	}
}

// Sync runs one full cycle: credential, pull, resolve, push, checkpoint.
// The checkpoint only advances after the push is confirmed, so a cycle cut
// short anywhere repeats its work instead of losing it.
func (e *Engine) Sync(ctx context.Context) error {
	c := &cycleRun{engine: e}
	defer c.close()

	if err := c.open(ctx); err != nil {
		return err
	}

	checkpoint, err := e.local.Checkpoint(ctx)
	if err != nil {
		return err
	}

	var pulled []models.Record
	if err := c.do(ctx, func(store remote.Store) error {
		var err error
		pulled, err = store.PullSince(ctx, checkpoint)
		return err
	}); err != nil {
		return err
	}

	watermark := checkpoint
	for _, rec := range pulled {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.UpdatedAt > watermark {
			watermark = rec.UpdatedAt
		}
		if err := e.applyPulled(ctx, rec); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The claim set: records dirty at this instant. Edits made after this
	// point stay dirty through MarkClean's timestamp guard.
	dirty, err := e.local.ListDirty(ctx)
	if err != nil {
		return err
	}

	if len(dirty) > 0 {
		if err := c.do(ctx, func(store remote.Store) error {
			return store.Push(ctx, dirty)
		}); err != nil {
			return err
		}
		for _, rec := range dirty {
			if err := e.local.MarkClean(ctx, rec.ID, rec.UpdatedAt); err != nil {
				return err
			}
		}
	}

	if watermark > checkpoint {
		if err := e.local.SetCheckpoint(ctx, watermark); err != nil {
			return err
		}
	}

	e.logger.Debug(ctx, "sync cycle complete",
		"pulled", len(pulled), "pushed", len(dirty), "checkpoint", watermark)
	return nil
}

// applyPulled reconciles one remote change with the local copy.
func (e *Engine) applyPulled(ctx context.Context, rec models.Record) error {
	local, err := e.local.Get(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return e.local.ApplyRemote(ctx, &rec)
		}
		return err
	}

	winner, remoteWon, conflict := Resolve(*local, rec)
	if !conflict {
		// Same version both sides; make sure it is not pushed again.
		return e.local.MarkClean(ctx, rec.ID, rec.UpdatedAt)
	}

	loser := *local
	if !remoteWon {
		loser = rec
	}

	if remoteWon {
		if err := e.local.ApplyRemote(ctx, &winner); err != nil {
			return err
		}
	}
	// A winning local copy stays dirty and goes out with the push.

	return e.local.RecordConflict(ctx, &models.ConflictResolution{
		RecordID:        rec.ID,
		WinnerUpdatedAt: winner.UpdatedAt,
		LoserUpdatedAt:  loser.UpdatedAt,
		Strategy:        models.StrategyLWW,
		ResolvedAt:      e.now().UnixMilli(),
	})
}

// cycleRun tracks the remote connection and the single allowed credential
// refresh of one cycle.
type cycleRun struct {
	engine    *Engine
	store     remote.Store
	refreshed bool
}

func (c *cycleRun) open(ctx context.Context) error {
	cred, err := c.engine.source.Get(ctx)
	if err != nil {
		return err
	}

	store, err := c.engine.connect(ctx, cred)
	if err != nil {
		if errors.Is(err, common.ErrStaleCredential) {
			return c.refreshAndReopen(ctx, err)
		}
		return err
	}
	c.store = store
	return nil
}

// do runs one remote step. A stale-credential failure triggers a single
// refresh and reconnect for the whole cycle; a second rejection gives up.
func (c *cycleRun) do(ctx context.Context, step func(remote.Store) error) error {
	err := step(c.store)
	if err == nil || !errors.Is(err, common.ErrStaleCredential) {
		return err
	}

	if err := c.refreshAndReopen(ctx, err); err != nil {
		return err
	}
	return step(c.store)
}

func (c *cycleRun) refreshAndReopen(ctx context.Context, cause error) error {
	if c.refreshed {
		return fmt.Errorf("%w: credential rejected after refresh: %v", common.ErrSyncUnavailable, cause)
	}
	c.refreshed = true
	c.engine.source.Invalidate()
	c.close()

	cred, err := c.engine.source.Get(ctx)
	if err != nil {
		return err
	}
	store, err := c.engine.connect(ctx, cred)
	if err != nil {
		if errors.Is(err, common.ErrStaleCredential) {
			return fmt.Errorf("%w: credential rejected after refresh: %v", common.ErrSyncUnavailable, err)
		}
		return err
	}
	c.store = store
	return nil
}

func (c *cycleRun) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
