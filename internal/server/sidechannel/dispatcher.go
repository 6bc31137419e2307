package sidechannel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/radsync/internal/logging"
	"github.com/dmitrijs2005/radsync/internal/metrics"
)

// Options tunes the dispatcher. Zero values fall back to defaults.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxElapsed  time.Duration
	RatePerSec  float64
	TaskTimeout time.Duration

	// BreakerThreshold consecutive failures open a sink's breaker for
	// BreakerTimeout.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = 2 * time.Minute
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 5 * time.Second
	}
	if o.BreakerThreshold == 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// Dispatcher owns the task queue and its workers.
type Dispatcher struct {
	opts    Options
	sinks   []guardedSink
	queue   chan Task
	limiter *rate.Limiter
	logger  logging.Logger

	// retried observes every wait between attempts; set in tests.
	retried func(wait time.Duration)

	runOnce sync.Once
	wg      sync.WaitGroup
}

// New builds a dispatcher delivering to sinks. With no sinks Enqueue is a no-op.
func New(logger logging.Logger, opts Options, sinks ...Sink) *Dispatcher {
	opts.setDefaults()

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	d := &Dispatcher{
		opts:    opts,
		queue:   make(chan Task, opts.QueueSize),
		limiter: rate.NewLimiter(limit, opts.Workers),
		logger:  logger,
	}
	for _, s := range sinks {
		d.sinks = append(d.sinks, guardedSink{sink: s, breaker: d.newBreaker(s.Name())})
	}
	return d
}

func (d *Dispatcher) newBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	threshold := d.opts.BreakerThreshold
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     d.opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a rejected payload says nothing about the sink's health
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn(context.Background(), "side channel breaker state changed", "sink", name, "from", from.String(), "to", to.String())
		},
	})
}

// Enabled reports whether any sink is configured.
func (d *Dispatcher) Enabled() bool { return len(d.sinks) > 0 }

// Enqueue hands tasks to the workers without blocking. Tasks that do not fit
// are dropped and counted.
func (d *Dispatcher) Enqueue(ctx context.Context, tasks ...Task) {
	if !d.Enabled() {
		return
	}
	for _, t := range tasks {
		select {
		case d.queue <- t:
		default:
			for _, s := range d.sinks {
				metrics.RecordSideChannel(s.sink.Name(), "dropped")
			}
			d.logger.Warn(ctx, "side channel queue full, task dropped", "op_id", t.Op.OpID)
		}
	}
	metrics.SideChannelQueueDepth.Set(float64(len(d.queue)))
}

// Run starts the workers and blocks until ctx is done. Tasks still queued at
// that point are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	started := false
	d.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("side channel dispatcher already running")
	}

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.worker(ctx)
		}()
	}
	d.wg.Wait()

	if n := len(d.queue); n > 0 {
		d.logger.Warn(context.Background(), "side channel stopped with pending tasks", "pending", n)
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			metrics.SideChannelQueueDepth.Set(float64(len(d.queue)))
			for _, s := range d.sinks {
				d.deliver(ctx, s, t)
			}
		}
	}
}

// deliver sends t to one sink, retrying transient failures with exponential
// backoff until MaxAttempts or MaxElapsed is reached.
func (d *Dispatcher) deliver(ctx context.Context, s guardedSink, t Task) {
	name := s.sink.Name()
	attempts := 0

	send := func() (struct{}, error) {
		attempts++
		if err := d.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, d.opts.TaskTimeout)
		defer cancel()

		_, err := s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, s.sink.Send(callCtx, t)
		})
		if IsPermanent(err) || errors.Is(err, gobreaker.ErrOpenState) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, send,
		backoff.WithBackOff(d.newBackOff()),
		backoff.WithMaxTries(uint(d.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(d.opts.MaxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RecordSideChannel(name, "retry")
			d.logger.Debug(ctx, "side channel retry", "sink", name, "op_id", t.Op.OpID, "attempt", attempts, "wait", wait, "error", err)
			if d.retried != nil {
				d.retried(wait)
			}
		}),
	)
	if err != nil {
		metrics.RecordSideChannel(name, "failed")
		d.logger.Warn(ctx, "side channel delivery failed", "sink", name, "op_id", t.Op.OpID, "attempts", attempts, "error", err)
		return
	}
	metrics.RecordSideChannel(name, "ok")
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.BaseBackoff
	b.MaxInterval = d.opts.MaxBackoff
	b.Multiplier = 2
	return b
}
