package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write an archived session's four JSON files",
		Long: `Write an archived session as the four session files:
TrialRecord, bhv_data, session_info and lever_reading.

Examples:
  levertask export 3f2a... --out ./export
  levertask export 3f2a... --db rig.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outDir, _ := cmd.Flags().GetString("out")
			ctx := context.Background()

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			sess, err := archive.LoadSession(ctx, args[0])
			if err != nil {
				return err
			}
			issues := store.ValidateSession(sess)

			exporter := store.NewJSONExporter(outDir)
			if err := exporter.WriteSession(ctx, sess); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			paths := exporter.Paths(sess)

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"id":     sess.ID,
					"files":  paths,
					"issues": issues,
				})
			}

			for _, v := range issues {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "warning: %s\n", v)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Exported session %s (%d trials)\n", sess.ID, len(sess.Trials))
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().String("db", "", "Archive path (default storage.db_path)")
	cmd.Flags().String("out", ".", "Output directory")

	return cmd
}
