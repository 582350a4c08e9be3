package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/pkg/storage"
)

var syncLogsCmd = &cobra.Command{
	Use:          "sync-logs",
	Short:        "List recent sync log entries",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

		deps, err := buildDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		filter := &storage.SyncLogFilter{}
		filter.Operation, _ = cmd.Flags().GetString("operation")
		filter.MintAddress, _ = cmd.Flags().GetString("mint")
		filter.Status, _ = cmd.Flags().GetString("status")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		logs, err := deps.syncLogger.List(context.Background(), filter)
		if err != nil {
			return printFailure(err)
		}
		return printResult(true, fmt.Sprintf("Found %d sync log entries", len(logs)), map[string]interface{}{
			"logs": logs,
		})
	},
}

func init() {
	syncLogsCmd.Flags().String("operation", "", "Only entries for this operation (e.g. sync_nft, sync_all, cron_sync)")
	syncLogsCmd.Flags().String("mint", "", "Only entries for this mint address")
	syncLogsCmd.Flags().String("status", "", "Only entries with this status (success, error)")
	syncLogsCmd.Flags().Int("limit", 50, "Maximum entries to return")
}
