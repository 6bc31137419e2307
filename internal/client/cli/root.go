package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/radsync/internal/client/config"
)

// NewRootCommand builds the radsync command tree. args are the raw process
// arguments; they are scanned for -c/--config before cobra parses flags so
// that flags override the JSON file. The returned closer releases the App
// built for the executed command.
func NewRootCommand(args []string) (*cobra.Command, func() error, error) {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return nil, nil, err
	}

	var app *App
	closer := func() error {
		if app == nil {
			return nil
		}
		return app.Close()
	}

	root := &cobra.Command{
		Use:           "radsync",
		Short:         "Offline-first sync client for radiology reference data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := NewApp(ctx, cfg, cmd.OutOrStdout(), cmd.InOrStdin())
			if err != nil {
				return err
			}
			app = a
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to JSON config file")
	pf.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "sync server base URL")
	pf.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "local store database file")
	pf.StringVar(&cfg.QueueDir, "queue-dir", cfg.QueueDir, "push queue directory (empty keeps the queue in memory)")
	pf.DurationVar(&cfg.DeltaInterval, "delta-interval", cfg.DeltaInterval, "interval between delta pulls")
	pf.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "interval between push queue flushes")
	pf.DurationVar(&cfg.OnlineCheckInterval, "online-check-interval", cfg.OnlineCheckInterval, "interval between server reachability probes")
	pf.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	pf.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device id stamped on operations (generated when empty)")
	pf.StringVar(&cfg.ActorID, "actor-id", cfg.ActorID, "actor id stamped on operations")
	pf.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotated log file (stderr when empty)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	pf.BoolVar(&cfg.PersistValidators, "persist-validators", cfg.PersistValidators, "keep cache validators across restarts")
	pf.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "operations per push call")
	pf.IntVar(&cfg.MaxDeltaRounds, "max-delta-rounds", cfg.MaxDeltaRounds, "follow-up pulls while the server reports more")

	appOf := func() *App { return app }
	root.AddCommand(
		newRunCommand(appOf),
		newPullCommand(appOf),
		newPushCommand(appOf),
		newUsageCommand(appOf),
		newListCommand(appOf),
		newTemplateCommand(appOf),
		newLogCommand(appOf),
		newPrefsCommand(appOf),
		newStatusCommand(appOf),
		newTokenCommand(appOf),
		newResetCommand(appOf),
	)
	return root, closer, nil
}
