package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/levertask/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect levertask configuration",
		Long: `Inspect the effective configuration.

Settings come from ~/.levertask/config.yaml (or --config), then .env files,
then LEVERTASK_* environment variables.

Examples:
  levertask config show             # Effective settings as YAML
  levertask config show --json      # Effective settings as JSON
  levertask config defaults         # Built-in defaults, a starting config file
  levertask config paths            # Files the rig reads and writes`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigDefaultsCmd(),
		newConfigPathsCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return writeConfig(cmd, cfg)
		},
	}
}

func newConfigDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeConfig(cmd, config.Default())
		},
	}
}

// pathEntry is one file location in `config paths` output.
type pathEntry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func newConfigPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List the files and directories the rig uses",
		Long: `List every location the configuration resolves to, with whether it exists.
Missing cue files leave that cue silent during a session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfgPath == "" {
				cfgPath, _ = config.DefaultPath()
			}
			backupDir, err := cfg.BackupDir()
			if err != nil {
				return err
			}
			cues := cfg.CuePaths()

			entries := []pathEntry{
				{Name: "config", Path: cfgPath},
				{Name: "output_dir", Path: cfg.Storage.OutputDir},
				{Name: "db_path", Path: cfg.Storage.DBPath},
				{Name: "backup_dir", Path: backupDir},
				{Name: "log_file", Path: cfg.Logging.File},
				{Name: "cue_start_competitive", Path: cues.StartCompetitive},
				{Name: "cue_start_dilemma", Path: cues.StartDilemma},
				{Name: "cue_large_reward", Path: cues.LargeReward},
				{Name: "cue_small_reward", Path: cues.SmallReward},
			}
			for i := range entries {
				if entries[i].Path == "" {
					continue
				}
				_, statErr := os.Stat(entries[i].Path)
				entries[i].Exists = statErr == nil
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"paths": entries,
				})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, e := range entries {
				path, state := e.Path, "missing"
				switch {
				case path == "":
					path, state = "-", "disabled"
				case e.Exists:
					state = "ok"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, path, state)
			}
			return w.Flush()
		},
	}
}

func writeConfig(cmd *cobra.Command, cfg *config.ExperimentConfig) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
