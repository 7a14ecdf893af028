package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agildata/fieldbase/internal/migration"
)

var (
	migrateLegacyDir  string
	migrateJSONOutput bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import data from the legacy flat store",
	Long:  "Run the one-shot migration from the legacy flat key-value store. A completed migration is never repeated; re-running is a no-op.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateLegacyDir, "legacy-dir", "",
		"Legacy store directory (overrides config and FIELDBASE_LEGACY_DIR)")
	migrateCmd.Flags().BoolVar(&migrateJSONOutput, "json", false,
		"Output in JSON format")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, db, err := loadStore()
	if err != nil {
		return err
	}
	defer db.Close()

	legacyDir := migrateLegacyDir
	if legacyDir == "" {
		legacyDir = cfg.Legacy.Dir
	}
	if legacyDir == "" {
		return fmt.Errorf("no legacy store directory configured (use --legacy-dir)")
	}

	mgr := migration.NewManager(db, migration.NewFileLegacyStore(legacyDir))
	report, err := mgr.Run(cmd.Context())
	if err != nil {
		return err
	}

	if migrateJSONOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}

	if report.AlreadyDone {
		fmt.Fprintln(cmd.OutOrStdout(), "Migration already completed, nothing to do")
		return nil
	}
	for collection, count := range report.Imported {
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %q\n", count, collection)
	}
	for collection, reason := range report.Discarded {
		fmt.Fprintf(cmd.ErrOrStderr(), "Discarded %q: %s\n", collection, reason)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
	return nil
}
