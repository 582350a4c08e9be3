package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// stakingUpsertColumns are refreshed when an upsert wins the conflict rule. metadata and
// created_at are owned by other writers and kept as-is.
var stakingUpsertColumns = []string{
	"wallet_address",
	"nft_id",
	"nft_name",
	"nft_tier",
	"staked_at",
	"release_date",
	"last_update",
	"staking_period",
	"daily_reward_rate",
	"total_rewards",
	"earned_so_far",
	"status",
	"image",
	"image_url",
	"nft_image",
	"ipfs_hash",
	"sync_status",
	"last_verified",
	"unstaked_at",
	"unstaked_reason",
	"updated_at",
}

// An existing row is replaced only while it is staked, or when it is unstaked and the incoming
// stake started later (a re-stake). Pending rows never match. A newer last_verified wins races
// between overlapping syncs.
const stakingConflictGuard = `(nft_staking.status = ? OR (nft_staking.status = ? AND nft_staking.staked_at < excluded.staked_at))
	AND (nft_staking.last_verified IS NULL OR nft_staking.last_verified <= excluded.last_verified)`

type PostgresMirrorStore struct {
	Db           *gorm.DB
	Logger       *zap.Logger
	GlobalConfig *config.Config
}

func NewPostgresMirrorStore(db *gorm.DB, l *zap.Logger, cfg *config.Config) *PostgresMirrorStore {
	return &PostgresMirrorStore{
		Db:           db,
		Logger:       l,
		GlobalConfig: cfg,
	}
}

func (s *PostgresMirrorStore) ListStakedRows(ctx context.Context) ([]*storage.StakingRow, error) {
	rows := make([]*storage.StakingRow, 0)
	res := s.Db.WithContext(ctx).
		Model(&storage.StakingRow{}).
		Where("status = ?", storage.StatusStaked).
		Order("mint_address asc").
		Find(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to list staked rows: %w", res.Error)
	}
	return rows, nil
}

func (s *PostgresMirrorStore) GetStakingRow(ctx context.Context, mintAddress string) (*storage.StakingRow, error) {
	var row storage.StakingRow
	res := s.Db.WithContext(ctx).
		Model(&storage.StakingRow{}).
		Where("mint_address = ?", mintAddress).
		First(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("mint '%s': %w", mintAddress, storage.ErrRowNotFound)
		}
		return nil, fmt.Errorf("failed to get staking row for mint '%s': %w", mintAddress, res.Error)
	}
	return &row, nil
}

func (s *PostgresMirrorStore) StakedMintSet(ctx context.Context, mintAddresses []string) (map[string]bool, error) {
	found := make(map[string]bool, len(mintAddresses))
	if len(mintAddresses) == 0 {
		return found, nil
	}
	var mints []string
	res := s.Db.WithContext(ctx).
		Model(&storage.StakingRow{}).
		Where("status = ? AND mint_address IN ?", storage.StatusStaked, mintAddresses).
		Pluck("mint_address", &mints)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to look up staked mints: %w", res.Error)
	}
	for _, m := range mints {
		found[m] = true
	}
	return found, nil
}

func (s *PostgresMirrorStore) UpsertStakingRecord(ctx context.Context, row *storage.StakingRow) (int64, error) {
	if row.Status == storage.StatusPending {
		return 0, &storage.MirrorWriteError{Op: "upsert", MintAddress: row.MintAddress, Err: errors.New("refusing to write a pending row")}
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.LastVerified == nil {
		row.LastVerified = &now
	}

	res := s.Db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mint_address"}},
			DoUpdates: clause.AssignmentColumns(stakingUpsertColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: stakingConflictGuard, Vars: []interface{}{storage.StatusStaked, storage.StatusUnstaked}},
			}},
		}).
		Create(row)
	if res.Error != nil {
		return 0, &storage.MirrorWriteError{Op: "upsert", MintAddress: row.MintAddress, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		s.Logger.Sugar().Debugw("Upsert skipped by conflict guard", zap.String("mint", row.MintAddress))
	}
	return res.RowsAffected, nil
}

func (s *PostgresMirrorStore) MarkAsUnstaked(ctx context.Context, mintAddress string, at time.Time) (int64, error) {
	at = at.UTC()
	res := s.Db.WithContext(ctx).
		Model(&storage.StakingRow{}).
		Where("mint_address = ? AND status = ?", mintAddress, storage.StatusStaked).
		Updates(map[string]interface{}{
			"status":          storage.StatusUnstaked,
			"unstaked_at":     at,
			"last_verified":   at,
			"sync_status":     storage.SyncStatusSynced,
			"unstaked_reason": storage.UnstakedReasonBlockchainSync,
			"updated_at":      at,
		})
	if res.Error != nil {
		return 0, &storage.MirrorWriteError{Op: "mark_unstaked", MintAddress: mintAddress, Err: res.Error}
	}
	return res.RowsAffected, nil
}

func metadataUpdates(fields *storage.MetadataFields) map[string]interface{} {
	verified := fields.LastVerified.UTC()
	if fields.LastVerified.IsZero() {
		verified = time.Now().UTC()
	}
	updates := map[string]interface{}{
		"image":         fields.Image,
		"image_url":     fields.ImageUrl,
		"nft_image":     fields.NftImage,
		"ipfs_hash":     fields.IpfsHash,
		"metadata":      fields.Metadata,
		"last_verified": verified,
		"updated_at":    verified,
	}
	if fields.NftName != "" {
		updates["nft_name"] = fields.NftName
	}
	return updates
}

func (s *PostgresMirrorStore) UpdateMetadataFields(ctx context.Context, mintAddress string, fields *storage.MetadataFields) (int64, error) {
	res := s.Db.WithContext(ctx).
		Model(&storage.StakingRow{}).
		Where("mint_address = ? AND status <> ?", mintAddress, storage.StatusPending).
		Updates(metadataUpdates(fields))
	if res.Error != nil {
		return 0, &storage.MirrorWriteError{Op: "update_metadata", MintAddress: mintAddress, Err: res.Error}
	}
	return res.RowsAffected, nil
}

func (s *PostgresMirrorStore) GetCatalogEntry(ctx context.Context, mintAddress string) (*storage.CatalogEntry, error) {
	var entry storage.CatalogEntry
	res := s.Db.WithContext(ctx).
		Model(&storage.CatalogEntry{}).
		Where("mint_address = ?", mintAddress).
		Limit(1).
		Find(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to get catalog entry for mint '%s': %w", mintAddress, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// InsertCatalogEntry is a no-op when the mint already has a catalog row.
func (s *PostgresMirrorStore) InsertCatalogEntry(ctx context.Context, entry *storage.CatalogEntry) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	res := s.Db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mint_address"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return &storage.MirrorWriteError{Op: "insert_catalog", MintAddress: entry.MintAddress, Err: res.Error}
	}
	return nil
}

func (s *PostgresMirrorStore) UpdateCatalogEntry(ctx context.Context, mintAddress string, fields *storage.MetadataFields) (int64, error) {
	updates := map[string]interface{}{
		"image_url":  fields.ImageUrl,
		"nft_image":  fields.NftImage,
		"ipfs_hash":  fields.IpfsHash,
		"metadata":   fields.Metadata,
		"updated_at": time.Now().UTC(),
	}
	if fields.NftName != "" {
		updates["name"] = fields.NftName
	}
	res := s.Db.WithContext(ctx).
		Model(&storage.CatalogEntry{}).
		Where("mint_address = ?", mintAddress).
		Updates(updates)
	if res.Error != nil {
		return 0, &storage.MirrorWriteError{Op: "update_catalog", MintAddress: mintAddress, Err: res.Error}
	}
	return res.RowsAffected, nil
}

// GetSweepCursor returns an empty cursor when the sweep has not started or has wrapped.
func (s *PostgresMirrorStore) GetSweepCursor(ctx context.Context, name string) (string, error) {
	var cursor storage.SweepCursor
	res := s.Db.WithContext(ctx).
		Model(&storage.SweepCursor{}).
		Where("name = ?", name).
		Limit(1).
		Find(&cursor)
	if res.Error != nil {
		return "", fmt.Errorf("failed to get sweep cursor '%s': %w", name, res.Error)
	}
	return cursor.Cursor, nil
}

func (s *PostgresMirrorStore) SaveSweepCursor(ctx context.Context, name string, cursor string) error {
	row := &storage.SweepCursor{
		Name:      name,
		Cursor:    cursor,
		UpdatedAt: time.Now().UTC(),
	}
	res := s.Db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
		}).
		Create(row)
	if res.Error != nil {
		return fmt.Errorf("failed to save sweep cursor '%s': %w", name, res.Error)
	}
	return nil
}

func (s *PostgresMirrorStore) InsertSyncLog(ctx context.Context, entry *storage.SyncLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res := s.Db.WithContext(ctx).
		Model(&storage.SyncLog{}).
		Clauses(clause.Returning{}).
		Create(entry)
	if res.Error != nil {
		return fmt.Errorf("failed to insert sync log for operation '%s': %w", entry.Operation, res.Error)
	}
	return nil
}

func (s *PostgresMirrorStore) ListSyncLogs(ctx context.Context, filter *storage.SyncLogFilter) ([]*storage.SyncLog, error) {
	query := s.Db.WithContext(ctx).Model(&storage.SyncLog{})
	limit := 50
	if filter != nil {
		if filter.Operation != "" {
			query = query.Where("operation = ?", filter.Operation)
		}
		if filter.MintAddress != "" {
			query = query.Where("mint_address = ?", filter.MintAddress)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}
	logs := make([]*storage.SyncLog, 0)
	res := query.Order("created_at desc").Limit(limit).Find(&logs)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", res.Error)
	}
	return logs, nil
}
