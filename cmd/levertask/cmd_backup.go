package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/backup"
	"github.com/nvandessel/levertask/internal/config"
	"github.com/nvandessel/levertask/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the session archive to a compressed file",
		Long: `Back up every archived session to a single compressed, checksummed file.

Default location: ~/.levertask/backups/levertask-backup-YYYYMMDD-HHMMSS.bak
Old backups are pruned according to backup.retention (default: keep 10).

Examples:
  levertask backup                          # Back up storage.db_path
  levertask backup --output data/rig.bak    # Back up to a specific file
  levertask backup list                     # List backups
  levertask backup verify <file>            # Check a backup's checksum
  levertask backup restore <file>           # Restore into the archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := cfg.BackupDir()
			if err != nil {
				return fmt.Errorf("failed to get backup directory: %w", err)
			}
			policy, err := cfg.Backup.Retention.Policy()
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = backup.GeneratePath(dir, time.Now())
			} else {
				outputPath, err = confineBackupPath(cfg, dir, outputPath)
				if err != nil {
					return fmt.Errorf("backup path rejected: %w", err)
				}
			}

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			snap, err := backup.Backup(context.Background(), archive, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			pruned, err := backup.Prune(filepath.Dir(outputPath), policy, time.Now())
			if err != nil {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			if jsonOut {
				var size int64
				if fi, err := os.Stat(outputPath); err == nil {
					size = fi.Size()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":       outputPath,
					"sessions":   len(snap.Sessions),
					"trials":     snap.TrialCount(),
					"size_bytes": size,
					"pruned":     len(pruned),
				})
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Backup created: %d sessions, %d trials\n", len(snap.Sessions), snap.TrialCount())
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", pathutil.Redact(outputPath))
			if len(pruned) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old backup(s)\n", len(pruned))
			}
			return nil
		},
	}

	cmd.PersistentFlags().String("db", "", "Archive path (default storage.db_path)")
	cmd.Flags().String("output", "", "Output file (default: generated in the backup directory)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := cfg.BackupDir()
			if err != nil {
				return err
			}
			backups, err := backup.List(dir)
			if err != nil {
				return err
			}

			if jsonOut {
				if backups == nil {
					backups = []backup.Info{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"backups": backups,
					"count":   len(backups),
				})
			}

			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s.\n", pathutil.Redact(dir))
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSESSIONS\tTRIALS\tSIZE\tFILE")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Sessions, b.Trials, formatSize(b.Size), filepath.Base(b.Path))
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a backup's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			header, err := backup.ReadHeader(path)
			if err == nil {
				err = backup.Verify(path)
			}

			if jsonOut {
				result := map[string]interface{}{
					"path":  path,
					"valid": err == nil,
				}
				if header != nil {
					result["created_at"] = header.CreatedAt
					result["sessions"] = header.SessionCount
					result["trials"] = header.TrialCount
				}
				if err != nil {
					result["error"] = err.Error()
				}
				if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(result); encErr != nil {
					return encErr
				}
				return err
			}

			if err != nil {
				return fmt.Errorf("backup is not valid: %w", err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Backup is valid: %d sessions, %d trials (created %s)\n",
				header.SessionCount, header.TrialCount, header.CreatedAt.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore archived sessions from a backup",
		Long: `Restore the sessions in a backup into the archive.

Modes:
  merge   - Skip sessions already in the archive (default)
  replace - Overwrite sessions already in the archive

Examples:
  levertask backup restore ~/.levertask/backups/levertask-backup-20260304-120000.bak
  levertask backup restore rig.bak --mode replace --db rig.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			mode, _ := cmd.Flags().GetString("mode")

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := cfg.BackupDir()
			if err != nil {
				return err
			}
			path, err := confineBackupPath(cfg, dir, args[0])
			if err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer archive.Close()

			result, err := backup.Restore(context.Background(), archive, path, backup.RestoreMode(mode))
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Restored %d sessions (%d skipped, %d replaced)\n",
				result.Restored, result.Skipped, result.Replaced)
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")

	return cmd
}

// confineBackupPath keeps backup files inside the backup directory or the
// session output directory.
func confineBackupPath(cfg *config.ExperimentConfig, backupDir, path string) (string, error) {
	return pathutil.Confine(path, backupDir, cfg.Storage.OutputDir)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
