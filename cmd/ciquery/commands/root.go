package commands

import (
	"fmt"

	"ciquery/internal/config"
	"ciquery/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	debug      bool
	noLogFile  bool
	configPath string
	cfg        *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "ciquery",
	Short: "Query CI systems through interchangeable data sources",
	Long: `ciquery answers questions about CI systems (tenants, projects, pipelines, jobs,
builds, tests and deployments) by asking the best-ranked configured source and
falling back to the next one when it cannot answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(logging.Options{Verbose: verbose, Debug: debug, NoFile: noLogFile}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		log.Debug().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("config", cfg.ConfigPath).
			Msg("ciquery starting")
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable trace logging")
	rootCmd.PersistentFlags().BoolVar(&noLogFile, "no-log-file", false, "log to stderr only")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "environments file (default $CIQUERY_CONFIG, ./.ciquery.yaml)")

	rootCmd.AddCommand(queryCmd, sourcesCmd, serveCmd, versionCmd)
}

// requireEnvironments fails commands that need a configured environment.
func requireEnvironments() error {
	if len(cfg.Environments) == 0 {
		return &config.Error{Reason: "no environments configured; pass --config or set CIQUERY_CONFIG"}
	}
	return nil
}
