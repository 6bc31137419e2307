package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/dmitrijs2005/radsync/internal/client/agent"
	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/config"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/radsync/internal/client/services"
	"github.com/dmitrijs2005/radsync/internal/filex"
	"github.com/dmitrijs2005/radsync/internal/logging"
)

// App is the client composition root: it owns the Local Store, the push
// queue, the session and every service built on them.
type App struct {
	config  *config.Config
	logger  *logging.SlogLogger
	logSink io.Closer

	repos     *client.Repositories
	queue     queue.Queue
	queueSink io.Closer

	transport *client.Transport
	api       *client.API

	delta   services.DeltaService
	push    services.PushService
	catalog services.CatalogService

	out    io.Writer
	reader *bufio.Reader
}

// NewApp wires the client. Local storage failures degrade to in-memory
// storage with a warning; only transport misconfiguration is fatal.
func NewApp(ctx context.Context, cfg *config.Config, out io.Writer, in io.Reader) (*App, error) {
	a := &App{config: cfg, out: out, reader: bufio.NewReader(in)}

	sink := logging.NewFileWriter(logging.FileConfig{Path: cfg.LogFile, MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 28})
	a.logSink = sink
	a.logger = logging.NewJSONLogger(sink, parseLevel(cfg.LogLevel))

	a.openStorage(ctx)

	session, err := services.RestoreSession(ctx, a.repos.Metadata, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "failed to restore session", "error", err)
		session = client.NewSession("", "")
	}
	tracker := client.NewTracker()
	if cfg.PersistValidators {
		if err := services.LoadValidators(ctx, a.repos.Metadata, tracker); err != nil {
			a.logger.Warn(ctx, "failed to restore validators", "error", err)
		}
	}

	a.transport, err = client.NewTransport(client.TransportOptions{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
		Session: session,
		Tracker: tracker,
		Logger:  a.logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.api = client.NewAPI(a.transport)

	deviceID, err := services.EnsureDeviceID(ctx, a.repos.Metadata, cfg.DeviceID)
	if err != nil {
		a.logger.Warn(ctx, "failed to persist device id", "error", err)
	}

	a.delta = services.NewDeltaService(a.api, a.repos.Entities, a.repos.Metadata, a.logger, cfg.MaxDeltaRounds)
	a.push = services.NewPushService(a.api, a.queue, a.logger, services.PushOptions{
		DeviceID:  deviceID,
		ActorID:   cfg.ActorID,
		BatchSize: cfg.BatchSize,
	})
	a.catalog = services.NewCatalogService(a.api, a.repos.Entities, a.push, a.logger)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) {
	if err := filex.EnsureParentDir(a.config.DBPath); err != nil {
		a.logger.Warn(ctx, "cannot create data directory", "error", err)
	}
	repos, err := client.InitDatabase(ctx, a.config.DBPath)
	if err != nil {
		a.logger.Warn(ctx, "local store unavailable, running network-only", "error", err)
		repos = client.MemoryRepositories()
	}
	a.repos = repos

	bq, err := queue.OpenBadger(queue.Options{Dir: a.config.QueueDir, SyncWrites: true})
	if err != nil {
		a.logger.Warn(ctx, "push queue unavailable, pending operations will not survive a restart", "error", err)
		a.queue = queue.NewMemoryQueue()
		return
	}
	a.queue, a.queueSink = bq, bq
}

// Agent builds the background sync agent from the app configuration.
func (a *App) Agent() *agent.Agent {
	opts := agent.Options{
		DeltaInterval:       a.config.DeltaInterval,
		FlushInterval:       a.config.FlushInterval,
		OnlineCheckInterval: a.config.OnlineCheckInterval,
		Events:              a.logger.Slog(),
	}
	if a.config.PersistValidators {
		opts.Tracker = a.transport.Tracker()
	}
	return agent.New(a.delta, a.push, a.api, a.repos.Metadata, a.logger, opts)
}

func (a *App) Close() error {
	var errs []error
	if a.queueSink != nil {
		errs = append(errs, a.queueSink.Close())
	}
	if a.repos != nil {
		errs = append(errs, a.repos.Close())
	}
	if a.logSink != nil {
		errs = append(errs, a.logSink.Close())
	}
	return errors.Join(errs...)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
