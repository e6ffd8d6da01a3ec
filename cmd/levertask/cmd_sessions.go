package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions in the SQLite archive",
		Long: `List sessions archived in storage.db_path, newest first.

Examples:
  levertask sessions                    # List archived sessions
  levertask sessions --db rig.db        # Use a specific archive
  levertask sessions rm <id>            # Delete a session and its records`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			sessions, err := archive.ListSessions(context.Background())
			if err != nil {
				return err
			}

			if jsonOut {
				if sessions == nil {
					sessions = []store.Summary{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"sessions": sessions,
					"count":    len(sessions),
				})
			}

			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived sessions.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tANIMALS\tTASK\tTRIALS")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d\t%d\n",
					s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Animal1, s.Animal2, s.TaskType, s.TrialCount)
			}
			return tw.Flush()
		},
	}

	cmd.PersistentFlags().String("db", "", "Archive path (default storage.db_path)")
	cmd.AddCommand(newSessionsRmCmd())

	return cmd
}

func newSessionsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := archive.DeleteSession(context.Background(), args[0]); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     args[0],
				})
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}

// openArchive opens --db, falling back to the configured storage.db_path.
func openArchive(cmd *cobra.Command) (*store.SQLiteStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dbPath = cfg.Storage.DBPath
	}
	if dbPath == "" {
		return nil, fmt.Errorf("no archive: pass --db or set storage.db_path")
	}
	return store.OpenSQLite(context.Background(), dbPath)
}
