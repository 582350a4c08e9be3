package tests

import (
	"path/filepath"
	"testing"

	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/logger"
	"github.com/tesola/staking-sync/internal/sqlite"
	"github.com/tesola/staking-sync/pkg/postgres/migrations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func GetConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Debug = false
	return cfg
}

func GetTestLogger(cfg *config.Config) *zap.Logger {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	return l
}

// GetMigratedTestDatabase opens a file-backed sqlite database under t.TempDir and applies every migration.
func GetMigratedTestDatabase(t *testing.T, cfg *config.Config, l *zap.Logger) *gorm.DB {
	t.Helper()
	grm, err := sqlite.NewGormSqliteFromSqlite(sqlite.NewSqlite(filepath.Join(t.TempDir(), "mirror.db")))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	rawDb, err := grm.DB()
	if err != nil {
		t.Fatalf("Failed to get raw database handle: %v", err)
	}
	t.Cleanup(func() {
		_ = rawDb.Close()
	})

	migrator := migrations.NewMigrator(rawDb, grm, l, cfg)
	if err := migrator.MigrateAll(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return grm
}
