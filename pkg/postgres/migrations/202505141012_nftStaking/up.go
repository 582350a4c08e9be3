package _202505141012_nftStaking

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tesola/staking-sync/internal/config"
	"gorm.io/gorm"
)

type nftStaking struct {
	Id              uint64          `gorm:"primaryKey"`
	MintAddress     string          `gorm:"type:varchar(64);not null;uniqueIndex:uniq_nft_staking_mint_address"`
	WalletAddress   string          `gorm:"type:varchar(64);not null;index:idx_nft_staking_wallet_address"`
	NftId           string          `gorm:"type:varchar(32)"`
	NftName         string          `gorm:"type:varchar(255)"`
	NftTier         string          `gorm:"type:varchar(32)"`
	StakedAt        time.Time       `gorm:"not null"`
	ReleaseDate     time.Time       `gorm:"not null"`
	LastUpdate      time.Time
	StakingPeriod   int64           `gorm:"not null;default:0"`
	DailyRewardRate decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	TotalRewards    decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	EarnedSoFar     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Status          string          `gorm:"type:varchar(16);not null;index:idx_nft_staking_status"`
	Image           string          `gorm:"type:text"`
	ImageUrl        string          `gorm:"type:text"`
	NftImage        string          `gorm:"type:text"`
	IpfsHash        string          `gorm:"type:text"`
	Metadata        string          `gorm:"type:text"`
	SyncStatus      string          `gorm:"type:varchar(16)"`
	LastVerified    *time.Time
	UnstakedAt      *time.Time
	UnstakedReason  string          `gorm:"type:varchar(64)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (nftStaking) TableName() string {
	return "nft_staking"
}

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	return grm.AutoMigrate(&nftStaking{})
}

func (m *Migration) GetName() string {
	return "202505141012_nftStaking"
}
