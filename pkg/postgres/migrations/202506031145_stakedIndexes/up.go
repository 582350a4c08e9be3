package _202506031145_stakedIndexes

import (
	"database/sql"
	"fmt"

	"github.com/tesola/staking-sync/internal/config"
	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	queries := []string{
		`create index if not exists idx_nft_staking_staked_wallet on nft_staking (wallet_address) where status = 'staked'`,
		`create index if not exists idx_nft_staking_staked_mint on nft_staking (mint_address) where status = 'staked'`,
		`create index if not exists idx_nft_staking_last_verified on nft_staking (last_verified)`,
	}

	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			fmt.Printf("Failed to execute query: %s\n", query)
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202506031145_stakedIndexes"
}
