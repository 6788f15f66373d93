package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/config"
)

var cfg *config.Config

var (
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "leads-cli",
	Short: "Lead enrichment and scoring pipeline",
	Long:  "Imports lead lists, enriches people and companies from web search and AI providers, scores leads and pushes them to contact lists.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogOverrides(&loaded.Log)
		cfg = loaded

		return eris.Wrap(config.InitLogger(cfg.Log), "init logger")
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyLogOverrides lets the command line win over the configured log level.
func applyLogOverrides(l *config.LogConfig) {
	switch {
	case verbose:
		l.Level = "debug"
	case logLevel != "":
		l.Level = logLevel
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
