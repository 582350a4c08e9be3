package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Sqlite(t *testing.T) {
	t.Run("Should create a new GormSqlite", func(t *testing.T) {
		grm, err := NewGormSqliteFromSqlite(NewSqlite(filepath.Join(t.TempDir(), "test.db")))
		assert.Nil(t, err)
		assert.NotNil(t, grm)

		db, err := grm.DB()
		assert.Nil(t, err)
		defer db.Close()

		var mode string
		res := grm.Raw(`PRAGMA journal_mode;`).Scan(&mode)
		assert.Nil(t, res.Error)
		assert.Equal(t, "wal", mode)
	})
	t.Run("Should support upsert with a guarded update", func(t *testing.T) {
		grm, err := NewGormSqliteFromSqlite(NewSqlite(filepath.Join(t.TempDir(), "test.db")))
		assert.Nil(t, err)

		assert.Nil(t, grm.Exec(`create table kv (k text primary key, v integer not null)`).Error)
		assert.Nil(t, grm.Exec(`insert into kv (k, v) values ('a', 1)`).Error)

		res := grm.Exec(`insert into kv (k, v) values ('a', 0) on conflict (k) do update set v = excluded.v where kv.v < excluded.v`)
		assert.Nil(t, res.Error)
		assert.Equal(t, int64(0), res.RowsAffected)

		res = grm.Exec(`insert into kv (k, v) values ('a', 5) on conflict (k) do update set v = excluded.v where kv.v < excluded.v`)
		assert.Nil(t, res.Error)
		assert.Equal(t, int64(1), res.RowsAffected)
	})
}
