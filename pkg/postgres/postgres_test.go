package postgres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ConnectionString(t *testing.T) {
	t.Run("Defaults to sslmode disable", func(t *testing.T) {
		connStr, err := getPostgresConnectionString(&PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Username: "sync",
			Password: "secret",
			DbName:   "staking",
		})
		assert.Nil(t, err)
		assert.Equal(t, "host=localhost  user=sync password=secret dbname=staking port=5432 sslmode=disable TimeZone=UTC", connStr)
	})
	t.Run("Adds search path for schema", func(t *testing.T) {
		connStr, err := getPostgresConnectionString(&PostgresConfig{
			Host:       "db",
			Port:       5432,
			DbName:     "staking",
			SchemaName: "mirror",
			SSLMode:    "require",
		})
		assert.Nil(t, err)
		assert.Contains(t, connStr, "sslmode=require")
		assert.Contains(t, connStr, "search_path=mirror")
	})
	t.Run("Rejects unknown ssl mode", func(t *testing.T) {
		_, err := getPostgresConnectionString(&PostgresConfig{Host: "db", SSLMode: "sometimes"})
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "invalid ssl mode")
	})
}

func Test_IsDuplicateKeyError(t *testing.T) {
	assert.False(t, IsDuplicateKeyError(nil))
	assert.False(t, IsDuplicateKeyError(errors.New("connection refused")))
	assert.True(t, IsDuplicateKeyError(errors.New(`pq: duplicate key value violates unique constraint "uniq_nft_staking_mint_address"`)))
}
