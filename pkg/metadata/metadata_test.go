package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/tests"
	"github.com/tesola/staking-sync/pkg/storage"
	"github.com/tesola/staking-sync/pkg/storage/postgres"
	"gorm.io/gorm"
)

const testMint = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func setup(t *testing.T) (*config.Config, *gorm.DB, *postgres.PostgresMirrorStore, *Synthesizer) {
	cfg := tests.GetConfig()
	cfg.MetadataConfig.ImagesCid = "bafytestcid"
	cfg.MetadataConfig.IpfsGateway = "https://gateway.test/ipfs/"
	l := tests.GetTestLogger(cfg)
	grm := tests.GetMigratedTestDatabase(t, cfg, l)
	store := postgres.NewPostgresMirrorStore(grm, l, cfg)
	return cfg, grm, store, NewSynthesizer(store, store, l, cfg)
}

func insertRow(t *testing.T, store *postgres.PostgresMirrorStore, status string, nftId string) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	row := &storage.StakingRow{
		MintAddress:     testMint,
		WalletAddress:   "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		NftId:           nftId,
		NftTier:         "EPIC",
		StakedAt:        now,
		ReleaseDate:     now.Add(24 * time.Hour),
		DailyRewardRate: decimal.NewFromInt(10),
		TotalRewards:    decimal.NewFromInt(10),
		EarnedSoFar:     decimal.Zero,
		Status:          status,
		LastVerified:    &now,
	}
	if status == storage.StatusPending {
		assert.Nil(t, store.Db.Create(row).Error)
		return
	}
	_, err := store.UpsertStakingRecord(context.Background(), row)
	assert.Nil(t, err)
}

func Test_CreateImageUrl(t *testing.T) {
	_, _, _, s := setup(t)

	t.Run("Pads numeric ids", func(t *testing.T) {
		urls, err := s.CreateImageUrl("42")
		assert.Nil(t, err)
		assert.Equal(t, "ipfs://bafytestcid/0042.png", urls.IpfsUrl)
		assert.Equal(t, "https://gateway.test/ipfs/bafytestcid/0042.png", urls.GatewayUrl)
		assert.Equal(t, urls.GatewayUrl, urls.NftImage)
		assert.Equal(t, "bafytestcid", urls.IpfsHash)
	})
	t.Run("Strips non-digits", func(t *testing.T) {
		urls, err := s.CreateImageUrl("SOLARA #7")
		assert.Nil(t, err)
		assert.Equal(t, "ipfs://bafytestcid/0007.png", urls.IpfsUrl)
	})
	t.Run("Keeps ids wider than four digits", func(t *testing.T) {
		urls, err := s.CreateImageUrl("12345")
		assert.Nil(t, err)
		assert.Equal(t, "ipfs://bafytestcid/12345.png", urls.IpfsUrl)
	})
	t.Run("Rejects ids without digits", func(t *testing.T) {
		_, err := s.CreateImageUrl("abc")
		assert.True(t, errors.Is(err, ErrInvalidNftId))
	})
}

func Test_ExtractOrGenerateId(t *testing.T) {
	t.Run("Hashes known mints", func(t *testing.T) {
		assert.Equal(t, "281", HashMintId("So11111111111111111111111111111111111111112"))
		assert.Equal(t, "612", HashMintId(testMint))
	})
	t.Run("Prefers the catalog mint index", func(t *testing.T) {
		idx := int64(17)
		assert.Equal(t, "17", ExtractOrGenerateId(testMint, &storage.CatalogEntry{Id: 3, MintIndex: &idx}))
	})
	t.Run("Falls back to the catalog id", func(t *testing.T) {
		assert.Equal(t, "3", ExtractOrGenerateId(testMint, &storage.CatalogEntry{Id: 3}))
	})
	t.Run("Falls back to the hash without a catalog entry", func(t *testing.T) {
		assert.Equal(t, "612", ExtractOrGenerateId(testMint, nil))
	})
}

func Test_BuildMetadata(t *testing.T) {
	_, _, _, s := setup(t)

	meta := s.BuildMetadata("612", "", "ipfs://bafytestcid/0612.png")
	assert.Equal(t, "SOLARA #612", meta.Name)
	assert.Equal(t, "SOLARA", meta.Symbol)
	assert.Equal(t, "SOLARA NFT Collection", meta.Description)
	assert.Equal(t, []Attribute{{TraitType: "Tier", Value: "Common"}}, meta.Attributes)
}

func Test_UpdateNFTMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("Fails for a missing mirror row", func(t *testing.T) {
		_, _, _, s := setup(t)
		_, err := s.UpdateNFTMetadata(ctx, testMint)
		assert.True(t, errors.Is(err, storage.ErrRowNotFound))
	})
	t.Run("Refuses pending rows", func(t *testing.T) {
		_, _, store, s := setup(t)
		insertRow(t, store, storage.StatusPending, "")
		_, err := s.UpdateNFTMetadata(ctx, testMint)
		assert.True(t, errors.Is(err, ErrRowPending))
	})
	t.Run("Writes mirror fields and creates a catalog entry", func(t *testing.T) {
		_, _, store, s := setup(t)
		insertRow(t, store, storage.StatusStaked, "")

		res, err := s.UpdateNFTMetadata(ctx, testMint)
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "612", res.NftId)
		assert.Equal(t, int64(1), res.RowsAffected)
		assert.True(t, res.CatalogCreated)

		row, err := store.GetStakingRow(ctx, testMint)
		assert.Nil(t, err)
		assert.Equal(t, "ipfs://bafytestcid/0612.png", row.ImageUrl)
		assert.Equal(t, row.ImageUrl, row.Image)
		assert.Equal(t, "SOLARA #612", row.NftName)

		var meta NFTMetadata
		assert.Nil(t, json.Unmarshal([]byte(row.Metadata), &meta))
		assert.Equal(t, "EPIC", meta.Attributes[0].Value)

		entry, err := store.GetCatalogEntry(ctx, testMint)
		assert.Nil(t, err)
		if assert.NotNil(t, entry) {
			assert.Equal(t, int64(612), *entry.MintIndex)
			assert.Equal(t, "completed", entry.Status)
		}

		again, err := s.UpdateNFTMetadata(ctx, testMint)
		assert.Nil(t, err)
		assert.False(t, again.CatalogCreated)
		assert.True(t, again.CatalogUpdated)
		assert.Equal(t, "612", again.NftId)
	})
	t.Run("Uses the stored nft id when no catalog entry exists", func(t *testing.T) {
		_, _, store, s := setup(t)
		insertRow(t, store, storage.StatusStaked, "88")

		res, err := s.UpdateNFTMetadata(ctx, testMint)
		assert.Nil(t, err)
		assert.Equal(t, "88", res.NftId)
		assert.Equal(t, "ipfs://bafytestcid/0088.png", res.ImageUrl)
	})
}
