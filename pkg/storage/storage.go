package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	StatusStaked   = "staked"
	StatusUnstaked = "unstaked"
	// StatusPending is owned by the external mint allocator and never written here.
	StatusPending = "pending"

	SyncStatusSynced = "synced"

	UnstakedReasonBlockchainSync = "blockchain_sync"
)

var (
	ErrRowNotFound = errors.New("mirror row not found")
	ErrMirrorWrite = errors.New("mirror write failed")
)

type MirrorWriteError struct {
	Op          string
	MintAddress string
	Err         error
}

func (e *MirrorWriteError) Error() string {
	return fmt.Sprintf("mirror write failed: %s mint=%s: %v", e.Op, e.MintAddress, e.Err)
}

func (e *MirrorWriteError) Unwrap() error { return e.Err }

func (e *MirrorWriteError) Is(target error) bool { return target == ErrMirrorWrite }

// MirrorStore is the only write path to nft_staking. Every method is a single statement.
type MirrorStore interface {
	ListStakedRows(ctx context.Context) ([]*StakingRow, error)
	GetStakingRow(ctx context.Context, mintAddress string) (*StakingRow, error)
	// StakedMintSet returns which of the given mints have a row with status staked.
	StakedMintSet(ctx context.Context, mintAddresses []string) (map[string]bool, error)

	// UpsertStakingRecord inserts or refreshes the row keyed by mint address. It returns 0 when the
	// existing row is pending, is unstaked for the same or a later stake, or was verified more recently.
	UpsertStakingRecord(ctx context.Context, row *StakingRow) (int64, error)
	// MarkAsUnstaked flips staked rows only; repeated calls affect zero rows.
	MarkAsUnstaked(ctx context.Context, mintAddress string, at time.Time) (int64, error)
	UpdateMetadataFields(ctx context.Context, mintAddress string, fields *MetadataFields) (int64, error)
}

type CatalogStore interface {
	// GetCatalogEntry returns nil without error when the mint has no catalog row.
	GetCatalogEntry(ctx context.Context, mintAddress string) (*CatalogEntry, error)
	InsertCatalogEntry(ctx context.Context, entry *CatalogEntry) error
	UpdateCatalogEntry(ctx context.Context, mintAddress string, fields *MetadataFields) (int64, error)
}

type CursorStore interface {
	GetSweepCursor(ctx context.Context, name string) (string, error)
	SaveSweepCursor(ctx context.Context, name string, cursor string) error
}

type SyncLogStore interface {
	InsertSyncLog(ctx context.Context, entry *SyncLog) error
	ListSyncLogs(ctx context.Context, filter *SyncLogFilter) ([]*SyncLog, error)
}

// Tables.
type StakingRow struct {
	Id              uint64 `gorm:"primaryKey"`
	MintAddress     string
	WalletAddress   string
	NftId           string
	NftName         string
	NftTier         string
	StakedAt        time.Time
	ReleaseDate     time.Time
	LastUpdate      time.Time
	StakingPeriod   int64
	DailyRewardRate decimal.Decimal
	TotalRewards    decimal.Decimal
	EarnedSoFar     decimal.Decimal
	Status          string
	Image           string
	ImageUrl        string
	NftImage        string
	IpfsHash        string
	Metadata        string
	SyncStatus      string
	LastVerified    *time.Time
	UnstakedAt      *time.Time
	UnstakedReason  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (StakingRow) TableName() string {
	return "nft_staking"
}

// HasImage is false when either image column is blank.
func (r *StakingRow) HasImage() bool {
	return r.ImageUrl != "" && r.Image != ""
}

type MetadataFields struct {
	NftName      string
	Image        string
	ImageUrl     string
	NftImage     string
	IpfsHash     string
	Metadata     string
	LastVerified time.Time
}

type CatalogEntry struct {
	Id          uint64 `gorm:"primaryKey"`
	MintAddress string
	Wallet      string
	MintIndex   *int64
	Name        string
	ImageUrl    string
	NftImage    string
	IpfsHash    string
	Metadata    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CatalogEntry) TableName() string {
	return "minted_nfts"
}

type SweepCursor struct {
	Name      string `gorm:"primaryKey"`
	Cursor    string
	UpdatedAt time.Time
}

func (SweepCursor) TableName() string {
	return "sweep_cursors"
}

type SyncLog struct {
	Id            string `gorm:"primaryKey"`
	Operation     string
	MintAddress   string
	WalletAddress string
	Status        string
	Details       string
	DurationMs    int64
	Changes       int64
	CreatedAt     time.Time
}

func (SyncLog) TableName() string {
	return "sync_logs"
}

type SyncLogFilter struct {
	Operation   string
	MintAddress string
	Status      string
	Limit       int
}
