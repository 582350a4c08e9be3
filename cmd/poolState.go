package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/clients/solana"
)

type poolStateView struct {
	Address                  string `json:"address"`
	Admin                    string `json:"admin"`
	RewardRate               uint64 `json:"rewardRate"`
	EmergencyFeePercent      uint8  `json:"emergencyFeePercent"`
	Paused                   bool   `json:"paused"`
	TotalStaked              uint64 `json:"totalStaked"`
	CommonMultiplier         uint64 `json:"commonMultiplier"`
	RareMultiplier           uint64 `json:"rareMultiplier"`
	EpicMultiplier           uint64 `json:"epicMultiplier"`
	LegendaryMultiplier      uint64 `json:"legendaryMultiplier"`
	LongStakingBonus         uint64 `json:"longStakingBonus"`
	MaxNftsPerUser           uint8  `json:"maxNftsPerUser"`
	TimeMultiplierIncrement  uint64 `json:"timeMultiplierIncrement"`
	TimeMultiplierPeriodDays uint64 `json:"timeMultiplierPeriodDays"`
	MaxTimeMultiplier        uint64 `json:"maxTimeMultiplier"`
}

var poolStateCmd = &cobra.Command{
	Use:          "pool-state",
	Short:        "Print the staking program's pool configuration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindCommandFlags(cmd)

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

		pool, err := chain.GetPoolState(context.Background())
		if err != nil {
			return printFailure(err)
		}
		address, err := solana.PoolStatePDA(chain.ProgramID())
		if err != nil {
			return printFailure(err)
		}

		return printResult(true, "Pool state loaded", &poolStateView{
			Address:                  address.String(),
			Admin:                    pool.Admin.String(),
			RewardRate:               pool.RewardRate,
			EmergencyFeePercent:      pool.EmergencyFeePercent,
			Paused:                   pool.Paused,
			TotalStaked:              pool.TotalStaked,
			CommonMultiplier:         pool.CommonMultiplier,
			RareMultiplier:           pool.RareMultiplier,
			EpicMultiplier:           pool.EpicMultiplier,
			LegendaryMultiplier:      pool.LegendaryMultiplier,
			LongStakingBonus:         pool.LongStakingBonus,
			MaxNftsPerUser:           pool.MaxNftsPerUser,
			TimeMultiplierIncrement:  pool.TimeMultiplierIncrement,
			TimeMultiplierPeriodDays: pool.TimeMultiplierPeriodDays,
			MaxTimeMultiplier:        pool.MaxTimeMultiplier,
		})
	},
}
