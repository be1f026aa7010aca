package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"echogate/internal/config"
	"echogate/internal/logger"
)

type rootOptions struct {
	configPath string
	verbose    bool

	cfg       *config.Config
	logCloser io.Closer
}

// NewRootCommand builds the echogate command tree. Running it without a
// subcommand starts the server.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "echogate",
		Short: "Chat-completion gateway with a persisted exchange log",
		Long: `echogate serves an OpenAI-compatible chat completion API backed by a
pluggable conversation pipeline and records every exchange in a SQL store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.verbose {
				cfg.Log.Level = "debug"
			}
			closer, err := logger.Setup(cfg.Log)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logCloser = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				_ = opts.logCloser.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ECHOGATE_CONFIG"), "path to config.json")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(serveCommand(opts))
	cmd.AddCommand(migrateCommand(opts))
	cmd.AddCommand(logsCommand(opts))
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("echogate failed")
		return 1
	}
	return 0
}
