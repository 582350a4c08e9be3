package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tesola/staking-sync/internal/config"
	"go.uber.org/zap"
)

func TestNewSnapshotService(t *testing.T) {
	cfg := &SnapshotConfig{}
	l, _ := zap.NewDevelopment()
	svc, err := NewSnapshotService(cfg, l)
	assert.NoError(t, err)
	assert.NotNil(t, svc)
	assert.Equal(t, cfg, svc.cfg)
}

func TestResolveFilePath(t *testing.T) {
	t.Run("empty path stays empty", func(t *testing.T) {
		p, err := resolveFilePath("")
		assert.NoError(t, err)
		assert.Equal(t, "", p)
	})
	t.Run("home directory is expanded", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		p, err := resolveFilePath("~/mirror.dump")
		assert.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "mirror.dump"), p)
	})
	t.Run("relative path becomes absolute", func(t *testing.T) {
		p, err := resolveFilePath("mirror.dump")
		assert.NoError(t, err)
		assert.True(t, filepath.IsAbs(p))
	})
}

func TestValidateCreateSnapshotConfig(t *testing.T) {
	l, _ := zap.NewDevelopment()

	svc, err := NewSnapshotService(&SnapshotConfig{Host: "localhost", OutputFile: "/tmp/mirror.dump"}, l)
	assert.NoError(t, err)
	assert.NoError(t, svc.validateCreateSnapshotConfig())

	svc, err = NewSnapshotService(&SnapshotConfig{Host: "localhost"}, l)
	assert.NoError(t, err)
	assert.Error(t, svc.validateCreateSnapshotConfig())

	svc, err = NewSnapshotService(&SnapshotConfig{OutputFile: "/tmp/mirror.dump"}, l)
	assert.NoError(t, err)
	assert.Error(t, svc.validateCreateSnapshotConfig())
}

func TestValidateRestoreConfig(t *testing.T) {
	l, _ := zap.NewDevelopment()
	tempDir := t.TempDir()

	existing := filepath.Join(tempDir, "mirror.dump")
	assert.NoError(t, os.WriteFile(existing, []byte("dump"), 0o600))

	svc, err := NewSnapshotService(&SnapshotConfig{InputFile: existing}, l)
	assert.NoError(t, err)
	assert.NoError(t, svc.validateRestoreConfig())

	svc, err = NewSnapshotService(&SnapshotConfig{InputFile: filepath.Join(tempDir, "missing.dump")}, l)
	assert.NoError(t, err)
	assert.Error(t, svc.validateRestoreConfig())

	svc, err = NewSnapshotService(&SnapshotConfig{InputFile: tempDir}, l)
	assert.NoError(t, err)
	assert.Error(t, svc.validateRestoreConfig(), "a directory is not a snapshot file")

	svc, err = NewSnapshotService(&SnapshotConfig{}, l)
	assert.NoError(t, err)
	assert.Error(t, svc.validateRestoreConfig())
}

func TestQualifiedTables(t *testing.T) {
	l, _ := zap.NewDevelopment()

	svc, _ := NewSnapshotService(SnapshotConfigFromDbConfig(&config.DatabaseConfig{Host: "localhost"}), l)
	assert.Equal(t, MirrorTables, svc.qualifiedTables())

	svc, _ = NewSnapshotService(SnapshotConfigFromDbConfig(&config.DatabaseConfig{Host: "localhost", SchemaName: "staking"}), l)
	tables := svc.qualifiedTables()
	assert.Len(t, tables, len(MirrorTables))
	assert.Equal(t, "staking.nft_staking", tables[0])
}
