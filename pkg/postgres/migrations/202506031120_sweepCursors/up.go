package _202506031120_sweepCursors

import (
	"database/sql"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	"gorm.io/gorm"
)

type sweepCursor struct {
	Name      string `gorm:"type:varchar(64);primaryKey"`
	Cursor    string `gorm:"type:varchar(64);not null;default:''"`
	UpdatedAt time.Time
}

func (sweepCursor) TableName() string {
	return "sweep_cursors"
}

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	return grm.AutoMigrate(&sweepCursor{})
}

func (m *Migration) GetName() string {
	return "202506031120_sweepCursors"
}
