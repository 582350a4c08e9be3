package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/pkg/reconciler"
)

var syncNftCmd = &cobra.Command{
	Use:          "sync-nft <mint-address>",
	Short:        "Synchronize one NFT's mirror row with its on-chain stake account",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

		deps, err := buildDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := context.Background()
		span := deps.syncLogger.Start(reconciler.OperationSyncNFT).WithMint(args[0])
		res, err := deps.reconciler.SyncNFT(ctx, args[0])
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			return printFailure(err)
		}
		span.Finish(ctx, res, res.RowsAffected, nil)
		return printResult(true, res.Message, res)
	},
}
