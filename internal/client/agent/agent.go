// Package agent runs the client's background sync loops under a suture
// supervisor: periodic delta pulls, periodic queue flushes and an online
// watcher that flushes and pulls as soon as the server becomes reachable.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/client/services"
	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// Pinger probes server reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures an Agent. Zero intervals disable the matching loop.
type Options struct {
	DeltaInterval       time.Duration
	FlushInterval       time.Duration
	OnlineCheckInterval time.Duration
	Kinds               []models.EntityKind

	// Tracker, when set, is persisted to Meta after every pull and on exit.
	Tracker *client.Tracker

	// Events receives supervisor events; nil drops them.
	Events *slog.Logger
}

type Agent struct {
	delta  services.DeltaService
	push   services.PushService
	pinger Pinger
	meta   metadata.Repository
	logger logging.Logger
	opts   Options

	pullKick  chan struct{}
	flushKick chan struct{}
	online    atomic.Bool
}

func New(delta services.DeltaService, push services.PushService, pinger Pinger, meta metadata.Repository, logger logging.Logger, opts Options) *Agent {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Agent{
		delta:     delta,
		push:      push,
		pinger:    pinger,
		meta:      meta,
		logger:    logger,
		opts:      opts,
		pullKick:  make(chan struct{}, 1),
		flushKick: make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	supCfg := suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   5 * time.Second,
		Timeout:          10 * time.Second,
	}
	if a.opts.Events != nil {
		supCfg.EventHook = (&sutureslog.Handler{Logger: a.opts.Events}).MustHook()
	}
	sup := suture.New("radsync-agent", supCfg)

	if a.opts.DeltaInterval > 0 {
		sup.Add(&loop{name: "delta", interval: a.opts.DeltaInterval, kick: a.pullKick, atStart: true, fn: a.pullOnce})
	}
	if a.opts.FlushInterval > 0 {
		sup.Add(&loop{name: "flush", interval: a.opts.FlushInterval, kick: a.flushKick, atStart: true, fn: a.flushOnce})
	}
	if a.opts.OnlineCheckInterval > 0 {
		sup.Add(&loop{name: "online-watcher", interval: a.opts.OnlineCheckInterval, atStart: true, fn: a.checkOnline})
	}

	a.logger.Info(ctx, "agent started",
		"delta_interval", a.opts.DeltaInterval,
		"flush_interval", a.opts.FlushInterval,
		"online_check_interval", a.opts.OnlineCheckInterval)

	err := sup.Serve(ctx)
	a.saveValidators(context.WithoutCancel(ctx))
	a.logger.Info(ctx, "agent stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Online reports the result of the last health probe.
func (a *Agent) Online() bool { return a.online.Load() }

// pullOnce runs a bounded delta sync. Failures are logged and left for the
// next tick; the cursor stays where it was.
func (a *Agent) pullOnce(ctx context.Context) {
	res, err := a.delta.SyncAll(ctx, a.opts.Kinds)
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		a.logger.Error(ctx, "delta pull rejected, re-authentication required")
	case services.IsOffline(err):
		a.logger.Debug(ctx, "delta pull skipped, server unreachable")
	case err != nil:
		a.logger.Warn(ctx, "delta pull failed", "error", err)
	default:
		a.logger.Debug(ctx, "delta pull done", "changes", res.Changes, "deleted", res.Deleted, "rounds", res.Rounds)
	}
	a.saveValidators(ctx)
}

// flushOnce drains the push queue.
func (a *Agent) flushOnce(ctx context.Context) {
	res, err := a.push.Flush(ctx)
	if res != nil && res.Rejected > 0 {
		a.logger.Error(ctx, "server refused queued operations, they were dropped", "rejected", res.Rejected)
	}

	var he *client.HTTPError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		a.logger.Error(ctx, "push rejected, re-authentication required")
	case services.IsOffline(err):
		a.logger.Debug(ctx, "push deferred, server unreachable", "pending", res.Remaining)
	case errors.As(err, &he) && !he.Retryable():
		a.logger.Error(ctx, "push refused, queue head needs attention",
			"status", he.Status, "code", he.Code, "pending", res.Remaining)
	case err != nil:
		a.logger.Warn(ctx, "push flush failed, will retry", "error", err)
	case res.Sent > 0:
		a.logger.Info(ctx, "push flush done", "sent", res.Sent, "applied", res.Applied)
	}
}

func (a *Agent) checkOnline(ctx context.Context) {
	err := a.pinger.Ping(ctx)
	now := err == nil
	was := a.online.Swap(now)

	if !now {
		if was {
			a.logger.Warn(ctx, "server unreachable", "error", err)
		}
		return
	}
	if err := services.MarkOnline(ctx, a.meta, time.Now()); err != nil {
		a.logger.Warn(ctx, "failed to record online time", "error", err)
	}
	if !was {
		a.logger.Info(ctx, "server reachable, syncing")
		a.flushOnce(ctx)
		kick(a.pullKick)
	}
}

func (a *Agent) saveValidators(ctx context.Context) {
	if a.opts.Tracker == nil {
		return
	}
	if err := services.SaveValidators(ctx, a.meta, a.opts.Tracker); err != nil {
		a.logger.Warn(ctx, "failed to persist validators", "error", err)
	}
}

// TriggerPull asks the delta loop to run now.
func (a *Agent) TriggerPull() { kick(a.pullKick) }

// TriggerFlush asks the flush loop to run now.
func (a *Agent) TriggerFlush() { kick(a.flushKick) }

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// loop is a suture.Service running fn on every tick and every kick.
type loop struct {
	name     string
	interval time.Duration
	kick     <-chan struct{}
	atStart  bool
	fn       func(ctx context.Context)
}

func (l *loop) Serve(ctx context.Context) error {
	if l.atStart {
		l.fn(ctx)
	}
	t := time.NewTicker(l.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l.fn(ctx)
		case <-l.kick:
			l.fn(ctx)
		}
	}
}

func (l *loop) String() string { return l.name }
