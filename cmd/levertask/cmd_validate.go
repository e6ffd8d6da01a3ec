package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/store"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration, or an archived session's records",
		Long: `Validate the experiment configuration.

With --session, checks an archived session for consistency instead:
  - trial numbers strictly increasing
  - each trial's events start with code 0 and end with code 9
  - event timepoints non-decreasing within a trial
  - readouts carry a lever id and a pull/release flag

Examples:
  levertask validate                          # Validate ~/.levertask/config.yaml
  levertask validate --config rig.yaml        # Validate a specific file
  levertask validate --session <id>           # Check an archived session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			sessionID, _ := cmd.Flags().GetString("session")

			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if sessionID != "" {
				return validateSession(cmd, cfg.Storage.DBPath, sessionID, jsonOut)
			}

			verr := cfg.Validate()
			if jsonOut {
				result := map[string]interface{}{
					"valid":  verr == nil,
					"config": path,
				}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
					return err
				}
				return verr
			}

			if verr != nil {
				return verr
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
	}

	cmd.Flags().String("session", "", "Archived session id to check instead of the config")

	return cmd
}

func validateSession(cmd *cobra.Command, dbPath, id string, jsonOut bool) error {
	if dbPath == "" {
		return fmt.Errorf("storage.db_path is not set")
	}
	ctx := context.Background()
	archive, err := store.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	sess, err := archive.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	issues := store.ValidateSession(sess)

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
			"session": id,
			"valid":   len(issues) == 0,
			"issues":  issues,
		})
	}

	if len(issues) == 0 {
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Session %s is consistent (%d trials).\n", id, len(sess.Trials))
		return nil
	}
	color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "Session %s has %d issue(s):\n", id, len(issues))
	for _, v := range issues {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", v)
	}
	return nil
}
