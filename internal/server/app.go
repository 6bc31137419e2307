// Package server wires the radsync API server: it opens and migrates the
// database, builds the services and the side channel, and runs the HTTP
// server until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
	"github.com/dmitrijs2005/radsync/internal/server/config"
	"github.com/dmitrijs2005/radsync/internal/server/httpapi"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/radsync/internal/server/services"
	"github.com/dmitrijs2005/radsync/internal/server/sidechannel"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
	mirror     *sidechannel.Dispatcher
	lists      *services.ListCache
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, parseLevel(c.LogLevel))

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	sinks, err := buildSinks(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("side channel init error: %w", err)
	}
	mirror := sidechannel.New(logger.With("module", "sidechannel"), sidechannel.Options{
		Workers:     c.SideChannelWorkers,
		QueueSize:   c.SideChannelQueueSize,
		MaxAttempts: c.SideChannelRetries,
		RatePerSec:  c.SideChannelRatePerSec,
		TaskTimeout: c.SideChannelTaskTimeout,
	}, sinks...)

	lists, err := services.NewListCache(map[models.EntityKind]time.Duration{
		models.KindTemplates: c.TemplatesCacheTTL,
		models.KindSentences: c.SentencesCacheTTL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("list cache init error: %w", err)
	}

	svc := httpapi.Services{
		Delta:   services.NewDeltaService(db, rm, c, logger),
		Push:    services.NewPushService(db, rm, mirror, logger),
		Pull:    services.NewPullService(db, rm, c, logger),
		Catalog: services.NewCatalogService(db, rm, lists, logger),
		Tokens:  services.NewUserService(db, rm, c),
	}

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		httpServer: httpapi.NewServer(c, logger, svc),
		mirror:     mirror,
		lists:      lists,
	}, nil
}

// buildSinks returns the side-channel sinks whose targets are configured.
func buildSinks(ctx context.Context, c *config.Config) ([]sidechannel.Sink, error) {
	var sinks []sidechannel.Sink
	if c.MirrorURL != "" {
		sinks = append(sinks, sidechannel.NewHTTPSink(c.MirrorURL, c.MirrorKey, &http.Client{Timeout: c.SideChannelTaskTimeout}))
	}
	if c.S3Bucket != "" {
		s3, err := sidechannel.NewS3Sink(ctx, sidechannel.S3Config{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
		cancelFunc()
	}
}

func (app *App) startSideChannel(ctx context.Context) {
	if !app.mirror.Enabled() {
		app.logger.Info(ctx, "side channel disabled, no sinks configured")
		return
	}
	if err := app.mirror.Run(ctx); err != nil {
		app.logger.Error(ctx, "side channel stopped", "error", err)
	}
}

// Run blocks until ctx is cancelled or a shutdown signal arrives, then stops
// the HTTP server, drains the side channel and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "address", app.config.Addr)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSideChannel(ctx)
	}()

	wg.Wait()

	app.lists.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
