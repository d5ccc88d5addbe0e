// Package cmd provides the CLI commands for sessiontrack.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/sessiontrack/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sessiontrack",
	Short: "sessiontrack - user session lifecycle tracker",
	Long: `sessiontrack tracks user sessions across start and end events.

An ended session stays resumable for a grace period. Once the grace period
has passed it is completed and reported to the configured sinks. Pending
sessions are persisted so a restart does not lose them.

Quick start:
  1. Optionally create a config file: sessiontrack.yaml
  2. Run: sessiontrack start
  3. POST /v1/session/start and /v1/session/end as the user comes and goes

Configuration:
  Config is loaded from sessiontrack.yaml in the current directory,
  $HOME/.sessiontrack/, or /etc/sessiontrack/.

  Environment variables can override config values with the SESSIONTRACK_ prefix.
  Example: SESSIONTRACK_SESSION_GRACE_PERIOD=30s

Commands:
  start       Start the tracker daemon
  stop        Stop the running daemon
  inspect     Show pending sessions in the store
  history     Show completed sessions from the ledger
  reset       Remove the persisted store
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sessiontrack.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig loads and validates the configuration for commands that do not
// take their own overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger for the configured level.
// DevMode always forces debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
