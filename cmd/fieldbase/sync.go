package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncJSONOutput bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the sync queue once and exit",
	Long:  "Probe the remote service and, if reachable, push every pending queue entry in order. Fails when the remote is offline.",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false,
		"Output in JSON format")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, db, err := loadStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := newEngine(db, cfg)
	result, err := engine.ForceSync(cmd.Context())
	if err != nil {
		return err
	}

	if syncJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %d of %d entries (%d retained for retry, %d dropped) in %s\n",
		result.Succeeded, result.Total, result.Retried, result.Dropped, result.Duration.Round(time.Millisecond))
	return nil
}
