package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/config"
)

// Build metadata, set via -ldflags.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "levertask",
		Short: "Two-animal lever-pull experiment controller",
		Long: `levertask runs a cooperative/competitive lever-pull session for two animals.

It turns lever positions into pull and release events, runs the trial state
machine, dispatches rewards to the two pumps and records every trial, behavior
event and lever readout for the session files and archive.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.levertask/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (info, debug, trace, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newSessionsCmd(),
		newExportCmd(),
		newBackupCmd(),
		newPortsCmd(),
	)
	return rootCmd
}

// loadConfig loads the config named by --config and applies --log-level.
// It does not validate.
func loadConfig(cmd *cobra.Command) (*config.ExperimentConfig, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, path, nil
}
