package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agildata/fieldbase/internal/backup"
	"github.com/agildata/fieldbase/internal/config"
)

var backupJSONOutput bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage local backups",
	Long:  "Create, list, delete, and restore versioned snapshot backups without running the daemon.",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup now",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup file and its registry entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var (
	autoEnable   bool
	autoDisable  bool
	autoInterval time.Duration

	backupAutoCmd = &cobra.Command{
		Use:   "auto",
		Short: "Show or change the auto-backup schedule",
		Long:  "Without flags, prints the persisted auto-backup settings. --enable/--disable and --interval change them; a running daemon picks the change up on its next settings read.",
		Args:  cobra.NoArgs,
		RunE:  runBackupAuto,
	}
)

var (
	restoreKeepExisting bool

	backupRestoreCmd = &cobra.Command{
		Use:   "restore <backup-id-or-file>",
		Short: "Restore the store from a backup",
		Long:  "Restore from a registered backup ID, or from a snapshot file path when the argument names an existing file. Existing data is replaced unless --keep-existing is set.",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupRestore,
	}
)

func init() {
	backupCmd.PersistentFlags().BoolVar(&backupJSONOutput, "json", false,
		"Output in JSON format")
	backupRestoreCmd.Flags().BoolVar(&restoreKeepExisting, "keep-existing", false,
		"Merge snapshot records into existing data instead of replacing it")
	backupAutoCmd.Flags().BoolVar(&autoEnable, "enable", false,
		"Enable scheduled automatic backups")
	backupAutoCmd.Flags().BoolVar(&autoDisable, "disable", false,
		"Disable scheduled automatic backups")
	backupAutoCmd.Flags().DurationVar(&autoInterval, "interval", 0,
		"Backup interval (e.g. 6h, 90m); zero keeps the persisted value")
	backupAutoCmd.MarkFlagsMutuallyExclusive("enable", "disable")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupAutoCmd)
}

// resolveBackupManager opens the store and builds a backup manager the
// same way the daemon does, minus the scheduler.
func resolveBackupManager() (*backup.Manager, *config.Config, func(), error) {
	cfg, db, err := loadStore()
	if err != nil {
		return nil, nil, nil, err
	}

	uploader, err := backup.NewUploader(storageConfig(cfg))
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("init snapshot storage: %w", err)
	}

	mgr := backup.NewManager(db, uploader, backup.ManagerConfig{
		Dir:             cfg.Backup.Dir,
		AppVersion:      Version,
		KeepBackups:     cfg.Backup.KeepBackups,
		KeepRestoreLogs: cfg.Backup.KeepRestoreLogs,
	})
	return mgr, cfg, func() { db.Close() }, nil
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	mgr, _, closeStore, err := resolveBackupManager()
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := mgr.Create(cmd.Context())
	if err != nil {
		return err
	}

	if backupJSONOutput {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created backup %s (%s, %d records)\n",
		rec.ID, formatSize(rec.SizeBytes), totalCount(rec.Counts))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	mgr, _, closeStore, err := resolveBackupManager()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := mgr.List(cmd.Context())
	if err != nil {
		return err
	}

	if backupJSONOutput {
		return printJSON(cmd.OutOrStdout(), records)
	}

	tw := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tCREATED\tSIZE\tRECORDS")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n",
			rec.ID,
			rec.CreatedAt.Local().Format(time.DateTime),
			formatSize(rec.SizeBytes),
			totalCount(rec.Counts))
	}
	return tw.Flush()
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	mgr, _, closeStore, err := resolveBackupManager()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted backup %s\n", args[0])
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	mgr, _, closeStore, err := resolveBackupManager()
	if err != nil {
		return err
	}
	defer closeStore()

	target := args[0]
	replace := !restoreKeepExisting

	var entry any
	if _, statErr := os.Stat(target); statErr == nil {
		entry, err = mgr.RestoreFile(cmd.Context(), target, replace)
	} else {
		entry, err = mgr.RestoreRecord(cmd.Context(), target, replace)
	}
	if err != nil {
		return err
	}

	if backupJSONOutput {
		return printJSON(cmd.OutOrStdout(), entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored from %s\n", target)
	return nil
}

func runBackupAuto(cmd *cobra.Command, args []string) error {
	cfg, db, err := loadStore()
	if err != nil {
		return err
	}
	defer db.Close()

	uploader, err := backup.NewUploader(storageConfig(cfg))
	if err != nil {
		return fmt.Errorf("init snapshot storage: %w", err)
	}
	mgr := backup.NewManager(db, uploader, backup.ManagerConfig{
		Dir:             cfg.Backup.Dir,
		AppVersion:      Version,
		KeepBackups:     cfg.Backup.KeepBackups,
		KeepRestoreLogs: cfg.Backup.KeepRestoreLogs,
	})
	sched := backup.NewScheduler(mgr, db, nil, cfg.Backup.AutoInterval.Std())

	if autoEnable || autoDisable || autoInterval > 0 {
		enabled, _ := sched.Settings(cmd.Context())
		if autoEnable {
			enabled = true
		}
		if autoDisable {
			enabled = false
		}
		if err := sched.Configure(cmd.Context(), enabled, autoInterval); err != nil {
			return err
		}
	}

	enabled, interval := sched.Settings(cmd.Context())
	if backupJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"enabled":  enabled,
			"interval": interval.String(),
		})
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Auto-backup %s (interval %s)\n", state, interval)
	return nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func totalCount(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}
