package _202505201544_syncLogs

import (
	"database/sql"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	"gorm.io/gorm"
)

type syncLog struct {
	Id            string    `gorm:"type:varchar(36);primaryKey"`
	Operation     string    `gorm:"type:varchar(64);not null;index:idx_sync_logs_operation"`
	MintAddress   string    `gorm:"type:varchar(64);index:idx_sync_logs_mint_address"`
	WalletAddress string    `gorm:"type:varchar(64)"`
	Status        string    `gorm:"type:varchar(16);not null"`
	Details       string    `gorm:"type:text"`
	DurationMs    int64     `gorm:"not null;default:0"`
	Changes       int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"index:idx_sync_logs_created_at"`
}

func (syncLog) TableName() string {
	return "sync_logs"
}

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	return grm.AutoMigrate(&syncLog{})
}

func (m *Migration) GetName() string {
	return "202505201544_syncLogs"
}
