package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/logger"
)

var (
	verbose  bool
	envFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tick-archive",
	Short: "Historical tick ingestion into MySQL",
	Long: `tick-archive pulls historical forex, metals and crypto ticks from the
Dukascopy datafeed into one MySQL table per symbol.

Ingestion walks every date of the configured range and every catalog symbol
in order. A checkpoint file records the last finished unit so an interrupted
run resumes where it stopped. Re-ingesting a day is safe: rows are upserted
by timestamp.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (defaults to .env lookup)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
}

// loadConfig loads .env files and the environment, then applies global flags
func loadConfig() (*config.Config, error) {
	if _, err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// bootstrap loads configuration and creates a logger writing to a new run file
func bootstrap(run string) (*config.Config, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewRun(&cfg.Logging, run)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}
