package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/logger"
)

// Version is stamped at build time with -ldflags
var Version = "dev"

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "curator",
		Short: "Curator discovers fresh articles and enriches them with a generative model.",
		Long: `Curator runs an hourly ingestion cycle:

  1. Discover: search each category for recent links and store unseen ones as stubs
  2. Enrich:   scrape each unprocessed stub, ask Gemini for a refined rewrite,
               and store the structured result

Use 'curator serve' for the long-running scheduler with its ops endpoints,
or 'curator run' for a single cycle.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.curator.yaml)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewDiscoverCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewArticlesCmd())
	rootCmd.AddCommand(NewStubsCmd())
	rootCmd.AddCommand(NewScrapeCmd())
	rootCmd.AddCommand(NewParseCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
}
