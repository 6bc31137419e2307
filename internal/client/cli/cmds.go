package cli

import (
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/radsync/internal/models"
)

func newRunCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync agent until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().runAgent(cmd.Context())
		},
	}
}

func newPullCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:       "pull [kind...]",
		Short:     "Pull changes since the last sync into the local store",
		ValidArgs: models.KindStrings(models.AllKinds),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().pull(cmd.Context(), args)
		},
	}
}

func newPushCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Deliver queued operations to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().flush(cmd.Context())
		},
	}
}

func newUsageCommand(app func() *App) *cobra.Command {
	var in usageInput
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Queue a template usage event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().recordUsage(cmd.Context(), in)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.TemplateID, "template-id", "", "template used")
	f.StringVar(&in.Modality, "modality", "", "study modality, e.g. CT")
	f.StringVar(&in.Action, "action", "generate", "what was done with the template")
	f.StringSliceVar(&in.Sentences, "sentence", nil, "smart sentence id used (repeatable)")
	f.StringArrayVar(&in.Meta, "meta", nil, "extra metadata as name=value (repeatable)")
	return cmd
}

func newListCommand(app func() *App) *cobra.Command {
	var modality, search string
	cmd := &cobra.Command{
		Use:       "list <templates|smart_sentences|findings>",
		Short:     "List a reference collection, falling back to the local store offline",
		ValidArgs: models.KindStrings(models.AllKinds),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().list(cmd.Context(), args[0], modality, search)
		},
	}
	cmd.Flags().StringVar(&modality, "mod", "", "filter by modality")
	cmd.Flags().StringVarP(&search, "query", "q", "", "filter by text")
	return cmd
}

func newTemplateCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "template <id>",
		Short: "Show one template, falling back to the local store offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().showTemplate(cmd.Context(), args[0])
		},
	}
}

func newLogCommand(app func() *App) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the server operation log (legacy pull feed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().operationLog(cmd.Context(), since)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 timestamp to start after")
	return cmd
}

func newPrefsCommand(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show user preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().showPrefs(cmd.Context())
		},
	}

	var (
		in        prefsInput
		dark      bool
		voiceName string
		voiceRate float64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change preferences locally and queue them for the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("dark-mode") {
				in.DarkMode = &dark
			}
			if f.Changed("voice-name") {
				in.VoiceName = &voiceName
			}
			if f.Changed("voice-rate") {
				in.VoiceRate = &voiceRate
			}
			return app().updatePrefs(cmd.Context(), in)
		},
	}
	f := set.Flags()
	f.BoolVar(&dark, "dark-mode", true, "dark UI theme")
	f.StringVar(&voiceName, "voice-name", "", "dictation voice")
	f.Float64Var(&voiceRate, "voice-rate", 1, "dictation voice rate (0.5-2.0)")
	f.StringSliceVar(&in.AddTemplate, "favorite-template", nil, "add a favorite template id")
	f.StringSliceVar(&in.AddSentences, "favorite-sentence", nil, "add a favorite sentence id")
	f.BoolVar(&in.Now, "now", false, "write to the server right away, queueing only if it is unreachable")

	cmd.AddCommand(set)
	return cmd
}

func newStatusCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().status(cmd.Context())
		},
	}
}

func newTokenCommand(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored API credentials",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store an access token (and optional refresh token)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app().setTokens(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the stored credentials",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app().clearTokens(cmd.Context())
			},
		},
	)
	return cmd
}

func newResetCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the sync cursor so the next pull starts over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().reset(cmd.Context())
		},
	}
}
