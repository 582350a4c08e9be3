package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/pkg/reconciler"
)

var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Detect discrepancies and repair them",
	Long: `Detect discrepancies and repair them.

Missing rows are created and image-less rows repaired up to --limit each; rows whose stake is
gone on-chain are always marked unstaked. A single failed item is counted and skipped.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

		deps, err := buildDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		fixMissing, _ := cmd.Flags().GetBool("fix-missing-records")
		updateMetadata, _ := cmd.Flags().GetBool("update-metadata")
		wallet, _ := cmd.Flags().GetString("wallet")
		quiet, _ := cmd.Flags().GetBool("quiet")

		opts := reconciler.SyncOptions{
			Limit:             limit,
			FixMissingRecords: fixMissing,
			UpdateMetadata:    updateMetadata,
			WalletAddress:     wallet,
		}

		var bar *progressbar.ProgressBar
		if !quiet {
			bar = progressbar.NewOptions(-1,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("repairing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			opts.OnProgress = func(done int, total int) {
				if total > 0 {
					bar.ChangeMax(total)
				}
				_ = bar.Set(done)
			}
		}

		ctx := context.Background()
		span := deps.syncLogger.Start(reconciler.OperationSyncAll).WithWallet(wallet)
		res, err := deps.reconciler.RunSyncCheck(ctx, opts)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			return printFailure(err)
		}
		span.Finish(ctx, res, int64(res.Created+res.Updated), nil)

		message := fmt.Sprintf("Checked %d, created %d, updated %d, errors %d", res.Checked, res.Created, res.Updated, res.Errors)
		return printResult(true, message, res)
	},
}

func init() {
	syncAllCmd.Flags().Int("limit", 0, "Maximum repairs per category (default reconciler.default-limit)")
	syncAllCmd.Flags().Bool("fix-missing-records", true, "Create mirror rows for active on-chain stakes that have none")
	syncAllCmd.Flags().Bool("update-metadata", true, "Regenerate image fields for rows that lack them")
	syncAllCmd.Flags().String("wallet", "", "Only synchronize the NFTs staked by this wallet")
	syncAllCmd.Flags().Bool("quiet", false, "Do not render a progress bar")
}
