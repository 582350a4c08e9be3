package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/internal/metrics/metricsTypes"
	"github.com/tesola/staking-sync/pkg/accounts"
	"github.com/tesola/staking-sync/pkg/discrepancy"
	"github.com/tesola/staking-sync/pkg/metadata"
	"github.com/tesola/staking-sync/pkg/security"
	"github.com/tesola/staking-sync/pkg/storage"
	"go.uber.org/zap"
)

const (
	OperationSyncNFT        = "sync_nft"
	OperationSyncWallet     = "sync_wallet"
	OperationSyncAll        = "sync_all"
	OperationUpdateMetadata = "update_nft_metadata"

	ActionUpserted       = "upserted"
	ActionMarkedUnstaked = "marked_unstaked"
	ActionUnchanged      = "unchanged"

	ItemSynchronized = "synchronized"
	ItemSkipped      = "skipped"
	ItemError        = "error"

	MessageNotStaked      = "NFT is not staked on-chain, marked as unstaked in database"
	MessageUnstaked       = "NFT is unstaked on-chain, marked as unstaked in database"
	MessageSynchronized   = "NFT staking data synchronized with blockchain"
	MessageMirrorNewer    = "Mirror row is newer or protected, no change applied"
	MessageNoWalletStakes = "No staked NFTs found for wallet"
)

type ChainReader interface {
	discrepancy.ChainReader
	GetUserStakingAccount(ctx context.Context, wallet solanago.PublicKey) (*accounts.UserStakingRecord, error)
}

type NFTSyncResult struct {
	Success      bool                  `json:"success"`
	Message      string                `json:"message"`
	MintAddress  string                `json:"mintAddress"`
	Action       string                `json:"action"`
	RowsAffected int64                 `json:"rowsAffected"`
	OnChain      *accounts.StakeRecord `json:"-"`
	Row          *storage.StakingRow   `json:"-"`
}

type WalletItemResult struct {
	MintAddress string `json:"mintAddress"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

type WalletSyncResult struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	WalletAddress string              `json:"walletAddress"`
	Count         int                 `json:"count"`
	Total         int                 `json:"total"`
	Results       []*WalletItemResult `json:"results"`
}

type SyncOptions struct {
	Limit             int
	FixMissingRecords bool
	UpdateMetadata    bool
	WalletAddress     string
	// OnProgress is called after each repaired item with the running and planned counts.
	OnProgress func(done int, total int)
}

type ItemFailure struct {
	MintAddress string `json:"mintAddress"`
	Operation   string `json:"operation"`
	Error       string `json:"error"`
}

type SyncDetail struct {
	Type            string            `json:"type"`
	Wallet          string            `json:"wallet,omitempty"`
	WalletResult    *WalletSyncResult `json:"result,omitempty"`
	Found           int               `json:"found"`
	MissingInDb     int               `json:"missingInDb"`
	MissingOnChain  int               `json:"missingOnChain"`
	ImageUrlMissing int               `json:"imageUrlMissing"`
	NextCursor      string            `json:"nextCursor,omitempty"`
	Failures        []*ItemFailure    `json:"failures,omitempty"`
}

type SyncCheckResult struct {
	Success   bool          `json:"success"`
	Checked   int           `json:"checked"`
	Updated   int           `json:"updated"`
	Created   int           `json:"created"`
	Errors    int           `json:"errors"`
	NoChange  int           `json:"noChange"`
	ElapsedMs int64         `json:"elapsedMs"`
	Details   []*SyncDetail `json:"details"`
}

type Reconciler struct {
	chain       ChainReader
	mirror      storage.MirrorStore
	catalog     storage.CatalogStore
	detector    *discrepancy.Detector
	synthesizer *metadata.Synthesizer
	metrics     *metrics.MetricsSink
	logger      *zap.Logger
	config      *config.ReconcilerConfig
	now         func() time.Time
}

func NewReconciler(
	chain ChainReader,
	mirror storage.MirrorStore,
	catalog storage.CatalogStore,
	detector *discrepancy.Detector,
	synthesizer *metadata.Synthesizer,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *Reconciler {
	return &Reconciler{
		chain:       chain,
		mirror:      mirror,
		catalog:     catalog,
		detector:    detector,
		synthesizer: synthesizer,
		metrics:     ms,
		logger:      l,
		config:      &cfg.ReconcilerConfig,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) observe(operation string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	_ = r.metrics.Incr(metricsTypes.Metric_Incr_SyncOperation, []metricsTypes.MetricsLabel{
		{Name: "operation", Value: operation},
		{Name: "status", Value: status},
	}, 1)
	_ = r.metrics.Timing(metricsTypes.Metric_Timing_SyncDuration, time.Since(started), []metricsTypes.MetricsLabel{
		{Name: "operation", Value: operation},
	})
}

// buildRow derives the mirror row for an active stake, including its synthesized image fields.
func (r *Reconciler) buildRow(ctx context.Context, record *accounts.StakeRecord) (*storage.StakingRow, error) {
	mint := record.NftMint.String()
	entry, err := r.catalog.GetCatalogEntry(ctx, mint)
	if err != nil {
		r.logger.Sugar().Warnw("Failed to read catalog entry, hashing mint for id", zap.String("mint", mint), zap.Error(err))
		entry = nil
	}
	nftId := metadata.ExtractOrGenerateId(mint, entry)
	urls, err := r.synthesizer.CreateImageUrl(nftId)
	if err != nil {
		return nil, err
	}

	verified := r.now()
	return &storage.StakingRow{
		MintAddress:     mint,
		WalletAddress:   record.Owner.String(),
		NftId:           nftId,
		NftName:         r.synthesizer.DisplayName(nftId),
		NftTier:         record.Tier(),
		StakedAt:        record.StakedAtTime(),
		ReleaseDate:     record.ReleaseAtTime(),
		LastUpdate:      record.LastUpdateAtTime(),
		StakingPeriod:   record.StakingPeriodDays(),
		DailyRewardRate: record.DailyRewardRate(),
		TotalRewards:    record.TotalRewards(),
		EarnedSoFar:     record.AccumulatedRewards(),
		Status:          storage.StatusStaked,
		Image:           urls.IpfsUrl,
		ImageUrl:        urls.IpfsUrl,
		NftImage:        urls.GatewayUrl,
		IpfsHash:        urls.IpfsHash,
		SyncStatus:      storage.SyncStatusSynced,
		LastVerified:    &verified,
	}, nil
}

func (r *Reconciler) upsertActive(ctx context.Context, record *accounts.StakeRecord) (*storage.StakingRow, int64, error) {
	row, err := r.buildRow(ctx, record)
	if err != nil {
		return nil, 0, err
	}
	affected, err := r.mirror.UpsertStakingRecord(ctx, row)
	if err != nil {
		return nil, 0, err
	}
	return row, affected, nil
}

func (r *Reconciler) SyncNFT(ctx context.Context, mintAddress string) (result *NFTSyncResult, err error) {
	started := time.Now()
	defer func() { r.observe(OperationSyncNFT, started, err) }()

	mint, err := security.ValidateAddress("mintAddress", mintAddress)
	if err != nil {
		return nil, err
	}
	return r.syncMint(ctx, mint)
}

func (r *Reconciler) syncMint(ctx context.Context, mint solanago.PublicKey) (*NFTSyncResult, error) {
	record, err := r.chain.GetStakeAccount(ctx, mint)
	if err != nil {
		return nil, err
	}

	if record == nil || !record.Active() {
		message := MessageNotStaked
		if record != nil && record.IsUnstaked {
			message = MessageUnstaked
		}
		affected, err := r.mirror.MarkAsUnstaked(ctx, mint.String(), r.now())
		if err != nil {
			return nil, err
		}
		action := ActionMarkedUnstaked
		if affected == 0 {
			action = ActionUnchanged
		}
		return &NFTSyncResult{
			Success:      true,
			Message:      message,
			MintAddress:  mint.String(),
			Action:       action,
			RowsAffected: affected,
			OnChain:      record,
		}, nil
	}

	row, affected, err := r.upsertActive(ctx, record)
	if err != nil {
		return nil, err
	}
	res := &NFTSyncResult{
		Success:      true,
		Message:      MessageSynchronized,
		MintAddress:  mint.String(),
		Action:       ActionUpserted,
		RowsAffected: affected,
		OnChain:      record,
		Row:          row,
	}
	if affected == 0 {
		res.Action = ActionUnchanged
		res.Message = MessageMirrorNewer
	}
	return res, nil
}

func (r *Reconciler) concurrency() int {
	if r.config.WalletConcurrency <= 0 {
		return 1
	}
	return r.config.WalletConcurrency
}

func (r *Reconciler) SyncWalletNFTs(ctx context.Context, walletAddress string) (result *WalletSyncResult, err error) {
	started := time.Now()
	defer func() { r.observe(OperationSyncWallet, started, err) }()

	wallet, err := security.ValidateAddress("walletAddress", walletAddress)
	if err != nil {
		return nil, err
	}
	userStaking, err := r.chain.GetUserStakingAccount(ctx, wallet)
	if err != nil {
		return nil, err
	}

	mints := userStaking.StakedMints
	result = &WalletSyncResult{
		Success:       true,
		WalletAddress: wallet.String(),
		Total:         len(mints),
		Results:       make([]*WalletItemResult, len(mints)),
	}
	if len(mints) == 0 {
		result.Message = MessageNoWalletStakes
		return result, nil
	}

	sem := make(chan struct{}, r.concurrency())
	var wg sync.WaitGroup
	for i, mint := range mints {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, mint solanago.PublicKey) {
			defer wg.Done()
			defer func() { <-sem }()
			result.Results[i] = r.syncWalletItem(ctx, wallet, mint)
		}(i, mint)
	}
	wg.Wait()

	for _, item := range result.Results {
		if item.Status == ItemSynchronized {
			result.Count++
		}
	}
	result.Message = fmt.Sprintf("Synchronized %d of %d staked NFTs", result.Count, result.Total)
	return result, nil
}

func (r *Reconciler) syncWalletItem(ctx context.Context, wallet solanago.PublicKey, mint solanago.PublicKey) *WalletItemResult {
	item := &WalletItemResult{MintAddress: mint.String()}

	record, err := r.chain.GetStakeAccount(ctx, mint)
	if err != nil {
		item.Status = ItemError
		item.Error = err.Error()
		return item
	}
	if record == nil || !record.Active() {
		item.Status = ItemSkipped
		item.Message = "stake account is not active on-chain"
		return item
	}
	if !record.Owner.Equals(wallet) {
		item.Status = ItemSkipped
		item.Message = "stake account is owned by another wallet"
		return item
	}

	_, affected, err := r.upsertActive(ctx, record)
	if err != nil {
		r.logger.Sugar().Errorw("Failed to sync wallet NFT",
			zap.String("wallet", wallet.String()),
			zap.String("mint", mint.String()),
			zap.Error(err),
		)
		item.Status = ItemError
		item.Error = err.Error()
		return item
	}
	if affected == 0 {
		item.Status = ItemSkipped
		item.Message = MessageMirrorNewer
		return item
	}
	item.Status = ItemSynchronized
	return item
}

func (r *Reconciler) UpdateNFTMetadata(ctx context.Context, mintAddress string) (result *metadata.UpdateResult, err error) {
	started := time.Now()
	defer func() { r.observe(OperationUpdateMetadata, started, err) }()

	if _, err = security.ValidateAddress("mintAddress", mintAddress); err != nil {
		return nil, err
	}
	return r.synthesizer.UpdateNFTMetadata(ctx, mintAddress)
}

func (r *Reconciler) CheckDiscrepancies(ctx context.Context) (*discrepancy.Report, error) {
	return r.detector.CheckDiscrepancies(ctx)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RunSyncCheck repairs what the detector finds. Item failures are counted, never returned.
func (r *Reconciler) RunSyncCheck(ctx context.Context, opts SyncOptions) (result *SyncCheckResult, err error) {
	started := time.Now()
	defer func() { r.observe(OperationSyncAll, started, err) }()

	limit := opts.Limit
	if limit <= 0 {
		limit = r.config.DefaultLimit
	}
	result = &SyncCheckResult{Details: make([]*SyncDetail, 0)}

	if opts.WalletAddress != "" {
		walletResult, err := r.SyncWalletNFTs(ctx, opts.WalletAddress)
		if err != nil {
			return nil, err
		}
		result.Checked = walletResult.Total
		result.Updated = walletResult.Count
		for _, item := range walletResult.Results {
			switch item.Status {
			case ItemError:
				result.Errors++
			case ItemSkipped:
				result.NoChange++
			}
		}
		result.Details = append(result.Details, &SyncDetail{
			Type:         "wallet_sync",
			Wallet:       walletResult.WalletAddress,
			WalletResult: walletResult,
		})
		result.Success = true
		result.ElapsedMs = time.Since(started).Milliseconds()
		return result, nil
	}

	report, err := r.detector.CheckDiscrepancies(ctx)
	if err != nil {
		return nil, err
	}
	result.Checked = report.TotalChecked
	detail := &SyncDetail{
		Type:            "discrepancy_check",
		Found:           len(report.Discrepancies),
		MissingInDb:     len(report.MissingInDatabase),
		MissingOnChain:  len(report.MissingOnChain),
		ImageUrlMissing: len(report.ImageUrlMissing),
		NextCursor:      report.NextCursor,
	}
	result.Details = append(result.Details, detail)

	var missing, images []*discrepancy.Discrepancy
	if opts.FixMissingRecords {
		missing = report.MissingInDatabase[:minInt(len(report.MissingInDatabase), limit)]
	}
	if opts.UpdateMetadata {
		// rows about to be marked unstaked keep their current image fields
		images = make([]*discrepancy.Discrepancy, 0, minInt(len(report.ImageUrlMissing), limit))
		for _, item := range report.ImageUrlMissing {
			if len(images) == limit {
				break
			}
			if report.HasIssue(item.MintAddress, discrepancy.IssueMissingOnChain) {
				continue
			}
			images = append(images, item)
		}
	}
	planned := len(missing) + len(report.MissingOnChain) + len(images)
	done := 0
	progress := func() {
		done++
		if opts.OnProgress != nil {
			opts.OnProgress(done, planned)
		}
	}
	fail := func(mint string, operation string, err error) {
		r.logger.Sugar().Errorw("Repair failed",
			zap.String("mint", mint),
			zap.String("operation", operation),
			zap.Error(err),
		)
		result.Errors++
		detail.Failures = append(detail.Failures, &ItemFailure{MintAddress: mint, Operation: operation, Error: err.Error()})
	}

	for _, item := range missing {
		if ctx.Err() != nil {
			break
		}
		mint, err := solanago.PublicKeyFromBase58(item.MintAddress)
		if err != nil {
			fail(item.MintAddress, OperationSyncNFT, err)
			progress()
			continue
		}
		res, err := r.syncMint(ctx, mint)
		switch {
		case err != nil:
			fail(item.MintAddress, OperationSyncNFT, err)
		case res.Action == ActionUpserted:
			result.Created++
		default:
			result.NoChange++
		}
		progress()
	}

	for _, item := range report.MissingOnChain {
		if ctx.Err() != nil {
			break
		}
		affected, err := r.mirror.MarkAsUnstaked(ctx, item.MintAddress, r.now())
		switch {
		case err != nil:
			fail(item.MintAddress, "mark_unstaked", err)
		case affected > 0:
			result.Updated++
		default:
			result.NoChange++
		}
		progress()
	}

	for _, item := range images {
		if ctx.Err() != nil {
			break
		}
		res, err := r.synthesizer.UpdateNFTMetadata(ctx, item.MintAddress)
		switch {
		case err != nil:
			fail(item.MintAddress, OperationUpdateMetadata, err)
		case res.RowsAffected > 0:
			result.Updated++
		default:
			result.NoChange++
		}
		progress()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Success = true
	result.ElapsedMs = time.Since(started).Milliseconds()
	r.logger.Sugar().Infow("Sync check complete",
		zap.Int("checked", result.Checked),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors),
		zap.Int("noChange", result.NoChange),
		zap.Int64("elapsedMs", result.ElapsedMs),
	)
	return result, nil
}
