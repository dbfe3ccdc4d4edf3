// Package cmd implements the easel command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/easel-ai/easel/internal/config"
	"github.com/easel-ai/easel/internal/log"
)

var (
	flagDebug    bool
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "easel",
	Short: "Easel - canvas version history and synchronization engine",
	Long: `Easel tracks iterative generation results as branchable version
histories, one session per conversation, and keeps them reconciled
between an in-memory graph, an on-device cache and a durable
PostgreSQL store.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is the single entry point called
// from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "log in JSON format")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

// newLogger builds the process logger from the persistent flags.
// Output goes to stderr so stdout stays parseable.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLogs})
}

// loadConfig loads and validates the application configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
