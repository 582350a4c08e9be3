package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/pkg/reconciler"
)

var syncWalletCmd = &cobra.Command{
	Use:          "sync-wallet <wallet-address>",
	Short:        "Synchronize every NFT listed in a wallet's on-chain staking account",
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
		span := deps.syncLogger.Start(reconciler.OperationSyncWallet).WithWallet(args[0])
		res, err := deps.reconciler.SyncWalletNFTs(ctx, args[0])
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			return printFailure(err)
		}
		span.Finish(ctx, res, int64(res.Count), nil)
		return printResult(true, res.Message, res)
	},
}
