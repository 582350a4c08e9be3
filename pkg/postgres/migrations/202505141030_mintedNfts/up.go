package _202505141030_mintedNfts

import (
	"database/sql"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	"gorm.io/gorm"
)

type mintedNft struct {
	Id          uint64 `gorm:"primaryKey"`
	MintAddress string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_minted_nfts_mint_address"`
	Wallet      string `gorm:"type:varchar(64)"`
	MintIndex   *int64
	Name        string `gorm:"type:varchar(255)"`
	ImageUrl    string `gorm:"type:text"`
	NftImage    string `gorm:"type:text"`
	IpfsHash    string `gorm:"type:text"`
	Metadata    string `gorm:"type:text"`
	Status      string `gorm:"type:varchar(16)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (mintedNft) TableName() string {
	return "minted_nfts"
}

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	return grm.AutoMigrate(&mintedNft{})
}

func (m *Migration) GetName() string {
	return "202505141030_mintedNfts"
}
