package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/security"
)

type walletStake struct {
	StakeAccount  string `json:"stakeAccount"`
	MintAddress   string `json:"mintAddress"`
	Tier          string `json:"tier"`
	StakedAt      string `json:"stakedAt"`
	ReleaseDate   string `json:"releaseDate"`
	StakingPeriod int64  `json:"stakingPeriod"`
	DailyReward   string `json:"dailyRewardRate"`
	TotalRewards  string `json:"totalRewards"`
	Accumulated   string `json:"accumulatedReward"`
}

var walletStakesCmd = &cobra.Command{
	Use:          "wallet-stakes <wallet-address>",
	Short:        "List the active on-chain stakes owned by a wallet",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

		wallet, err := security.ValidateAddress("walletAddress", args[0])
		if err != nil {
			return printFailure(err)
		}

		cfg := config.NewConfig()
		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		chain, err := newChainClient(cfg, l)
		if err != nil {
			return err
		}

		stakes, err := chain.GetWalletStakes(context.Background(), wallet)
		if err != nil {
			return printFailure(err)
		}

		out := make([]*walletStake, 0, len(stakes))
		for _, s := range stakes {
			out = append(out, &walletStake{
				StakeAccount:  s.Address.String(),
				MintAddress:   s.Record.NftMint.String(),
				Tier:          s.Record.Tier(),
				StakedAt:      s.Record.StakedAtTime().Format("2006-01-02T15:04:05Z"),
				ReleaseDate:   s.Record.ReleaseAtTime().Format("2006-01-02T15:04:05Z"),
				StakingPeriod: s.Record.StakingPeriodDays(),
				DailyReward:   s.Record.DailyRewardRate().String(),
				TotalRewards:  s.Record.TotalRewards().String(),
				Accumulated:   s.Record.AccumulatedRewards().String(),
			})
		}
		return printResult(true, fmt.Sprintf("Found %d active stakes", len(out)), map[string]interface{}{
			"walletAddress": wallet.String(),
			"stakes":        out,
		})
	},
}
