// Package cli wires the cobra command tree: deploy, profile management,
// history, schedules and the daemon.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitedeploy/internal/config"
	"sitedeploy/internal/crypto"
	"sitedeploy/internal/database"
	"sitedeploy/internal/logging"
)

const version = "1.2.0"

// NewRootCmd builds the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	var (
		logLevel    string
		logFile     string
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:           "sitedeploy",
		Short:         "Build and deploy web projects over the server file API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Init()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFile != "" {
				cfg.LogPath = logFile
			}
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}

			if err := logging.Init(cfg.LogLevel, cfg.LogPath); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			if err := crypto.InitEncryption(); err != nil {
				return fmt.Errorf("failed to initialize encryption: %w", err)
			}
			if _, err := database.Init(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return database.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug / info / warn / error")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append JSON logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database URL (sqlite:// or postgres://)")

	cmd.AddCommand(
		newDeployCmd(),
		newProfileCmd(),
		newHistoryCmd(),
		newScheduleCmd(),
		newDaemonCmd(),
	)
	return cmd
}
