// Package broker initializes and runs the credential broker. It wires the
// identity verifier, the rate limiter, the token broker and the media
// presigner into one HTTP server and handles graceful shutdown.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftnotes/driftsync/internal/broker/auth"
	"github.com/driftnotes/driftsync/internal/broker/bootstrap"
	"github.com/driftnotes/driftsync/internal/broker/config"
	"github.com/driftnotes/driftsync/internal/broker/httpapi"
	"github.com/driftnotes/driftsync/internal/broker/media"
	"github.com/driftnotes/driftsync/internal/broker/ratelimit"
	"github.com/driftnotes/driftsync/internal/broker/tokens"
	"github.com/driftnotes/driftsync/internal/logging"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON().With("app", "driftsync-broker")

	keys := auth.NewKeySet(cfg.JWKSURL, cfg.JWKSCacheTTL, cfg.UpstreamTimeout, logger)
	verifier := auth.NewVerifier(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.ClockSkew, logger)

	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.SyncTokenRateLimit, cfg.MediaPresignRateLimit, logger)

	minter := tokens.NewPlatformMinter(cfg.PlatformAPIURL, cfg.PlatformOrg, cfg.PlatformDatabase,
		cfg.PlatformAPIToken, cfg.UpstreamTimeout, logger)
	broker := tokens.NewBroker(minter, cfg.DatabaseURL, cfg.SyncTokenTTL, logger)

	signer, err := media.NewS3Signer(ctx, cfg.S3AccessKeyID, cfg.S3SecretAccessKey,
		cfg.S3Bucket, cfg.S3Region, cfg.S3BaseEndpoint)
	if err != nil {
		return nil, fmt.Errorf("s3 signer init error: %w", err)
	}
	presigner := media.NewService(signer, cfg.MediaURLTTL, logger)

	manifest, err := bootstrap.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap manifest init error: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Verifier:  verifier,
		Limiter:   limiter,
		Tokens:    broker,
		Media:     presigner,
		Bootstrap: manifest,
		Logger:    logger,
	})

	return &App{config: cfg, logger: logger, handler: handler}, nil
}

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

	server := &http.Server{
		Addr:              app.config.BindAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		app.logger.Info(ctx, "starting broker", "addr", app.config.BindAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "server error", "error", err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err.Error())
	}
	app.logger.Info(ctx, "broker stopped")
}
