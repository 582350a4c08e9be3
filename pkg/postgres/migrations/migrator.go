package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	_202505141012_nftStaking "github.com/tesola/staking-sync/pkg/postgres/migrations/202505141012_nftStaking"
	_202505141030_mintedNfts "github.com/tesola/staking-sync/pkg/postgres/migrations/202505141030_mintedNfts"
	_202505201544_syncLogs "github.com/tesola/staking-sync/pkg/postgres/migrations/202505201544_syncLogs"
	_202506031120_sweepCursors "github.com/tesola/staking-sync/pkg/postgres/migrations/202506031120_sweepCursors"
	_202506031145_stakedIndexes "github.com/tesola/staking-sync/pkg/postgres/migrations/202506031145_stakedIndexes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Migration interface {
	Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error
	GetName() string
}

type Migrator struct {
	Db           *sql.DB
	GDb          *gorm.DB
	Logger       *zap.Logger
	globalConfig *config.Config
}

func NewMigrator(db *sql.DB, gDb *gorm.DB, l *zap.Logger, cfg *config.Config) *Migrator {
	if err := gDb.AutoMigrate(&Migrations{}); err != nil {
		l.Sugar().Fatalw("Failed to auto-migrate migrations table", zap.Error(err))
	}
	return &Migrator{
		Db:           db,
		GDb:          gDb,
		Logger:       l,
		globalConfig: cfg,
	}
}

func (m *Migrator) migrations() []Migration {
	return []Migration{
		&_202505141012_nftStaking.Migration{},
		&_202505141030_mintedNfts.Migration{},
		&_202505201544_syncLogs.Migration{},
		&_202506031120_sweepCursors.Migration{},
		&_202506031145_stakedIndexes.Migration{},
	}
}

func (m *Migrator) MigrateAll() error {
	for _, migration := range m.migrations() {
		if err := m.Migrate(migration); err != nil {
			return fmt.Errorf("migration '%s' failed: %w", migration.GetName(), err)
		}
	}
	return nil
}

func (m *Migrator) Migrate(migration Migration) error {
	name := migration.GetName()

	var migrationRecord Migrations
	result := m.GDb.Find(&migrationRecord, "name = ?", name).Limit(1)

	if result.Error != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to find migration '%s'", name), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected > 0 {
		m.Logger.Sugar().Debugf("Migration %s already run", name)
		return nil
	}

	m.Logger.Sugar().Infof("Running migration '%s'", name)
	if err := migration.Up(m.Db, m.GDb, m.globalConfig); err != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to run migration '%s'", name), zap.Error(err))
		return err
	}

	migrationRecord = Migrations{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	result = m.GDb.Create(&migrationRecord)
	if result.Error != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to record migration '%s'", name), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

// Applied lists recorded migrations in the order they ran.
func (m *Migrator) Applied() ([]Migrations, error) {
	applied := make([]Migrations, 0)
	res := m.GDb.Model(&Migrations{}).Order("created_at asc, name asc").Find(&applied)
	if res.Error != nil {
		return nil, res.Error
	}
	return applied, nil
}

type Migrations struct {
	Name      string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt *time.Time
}
