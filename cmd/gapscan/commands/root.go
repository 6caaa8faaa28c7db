package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/logger"
)

var (
	// Global flags
	profileName  string
	profilesFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gapscan",
	Short: "gapscan - momentum gapper screener",
	Long: `gapscan Unified CLI

Finds low-priced, small-float stocks gapping up on heavy relative volume
with fresh news.

Usage:
  go run ./cmd/gapscan [command]

Examples:
  go run ./cmd/gapscan scan
  go run ./cmd/gapscan scan --tickers GME,PLTR --profile manual
  go run ./cmd/gapscan watch
  go run ./cmd/gapscan api --port 8089`,
	SilenceUsage: true,
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context, which
// every subcommand treats as its shutdown signal.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "screening profile (default from SCAN_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles-file", "", "YAML profiles file (default from SCAN_PROFILES_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// bootstrap loads configuration, applies global flags and creates the logger
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if profileName != "" {
		cfg.Scan.Profile = profileName
	}
	if profilesFile != "" {
		cfg.Scan.ProfilesPath = profilesFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, logger.New(cfg), nil
}
