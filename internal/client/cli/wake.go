package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/dmitrijs2005/radsync/internal/logging"
)

type syncTrigger interface {
	TriggerFlush()
	TriggerPull()
	Online() bool
}

// runAgent runs the sync agent until ctx ends. On unix `kill -USR1` makes it
// flush the queue and pull without waiting for the next tick.
func (a *App) runAgent(ctx context.Context) error {
	ag := a.Agent()
	wake := make(chan os.Signal, 1)
	if len(wakeSignals) > 0 {
		signal.Notify(wake, wakeSignals...)
		defer signal.Stop(wake)
	}
	go forwardWakeups(ctx, wake, ag, a.logger)
	return ag.Run(ctx)
}

func forwardWakeups(ctx context.Context, wake <-chan os.Signal, t syncTrigger, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			logger.Info(ctx, "sync requested", "online", t.Online())
			t.TriggerFlush()
			t.TriggerPull()
		}
	}
}
