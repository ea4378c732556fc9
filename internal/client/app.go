// Package client initializes and runs the sync daemon: local store,
// bootstrap manifest, credential source and the sync engine.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftnotes/driftsync/internal/client/bootstrap"
	"github.com/driftnotes/driftsync/internal/client/config"
	"github.com/driftnotes/driftsync/internal/client/credentials"
	"github.com/driftnotes/driftsync/internal/client/notes"
	"github.com/driftnotes/driftsync/internal/client/remote"
	"github.com/driftnotes/driftsync/internal/client/store"
	"github.com/driftnotes/driftsync/internal/client/syncer"
	"github.com/driftnotes/driftsync/internal/logging"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	engine *syncer.Engine
	notes  *notes.Service
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON().With("app", "driftsync-client")

	db, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	manifest, err := bootstrap.NewClient(cfg.BrokerBaseURL, cfg.HTTPTimeout, logger).Fetch(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap error: %w", err)
	}

	exchanger := credentials.NewExchangeClient(manifest.SyncTokenEndpoint, cfg.IdentityToken, cfg.HTTPTimeout)
	source := credentials.NewSource(exchanger, cfg.CredentialSafetyMargin, logger)

	connect := func(ctx context.Context, cred credentials.Credential) (remote.Store, error) {
		return remote.Open(ctx, cred)
	}

	repo := store.NewRecordRepository(db)
	engine := syncer.NewEngine(repo, source, connect, cfg.SyncInterval, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		engine: engine,
		notes:  notes.NewService(repo, engine),
	}, nil
}

// Engine exposes the sync engine so callers can kick a cycle after a
// local write.
func (app *App) Engine() *syncer.Engine { return app.engine }

// Notes exposes the note write path backed by the same local store the
// engine drains.
func (app *App) Notes() *notes.Service { return app.notes }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	app.logger.Info(ctx, "starting sync engine", "interval", app.config.SyncInterval.String())
	app.engine.Kick()
	_ = app.engine.Run(ctx)

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
	app.logger.Info(ctx, "client stopped")
}
