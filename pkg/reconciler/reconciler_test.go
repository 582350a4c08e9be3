package reconciler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/internal/tests"
	"github.com/tesola/staking-sync/pkg/accounts"
	"github.com/tesola/staking-sync/pkg/clients/solana"
	"github.com/tesola/staking-sync/pkg/discrepancy"
	"github.com/tesola/staking-sync/pkg/metadata"
	"github.com/tesola/staking-sync/pkg/security"
	"github.com/tesola/staking-sync/pkg/storage"
	"github.com/tesola/staking-sync/pkg/storage/postgres"
)

type fakeChain struct {
	mu      sync.Mutex
	stakes  map[string]*accounts.StakeRecord
	wallets map[string][]solanago.PublicKey
	failFor map[string]bool
	calls   int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		stakes:  make(map[string]*accounts.StakeRecord),
		wallets: make(map[string][]solanago.PublicKey),
		failFor: make(map[string]bool),
	}
}

func (f *fakeChain) GetStakeAccount(ctx context.Context, mint solanago.PublicKey) (*accounts.StakeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor[mint.String()] {
		return nil, &solana.ChainUnavailableError{Method: "getAccountInfo", Err: errors.New("connection reset")}
	}
	return f.stakes[mint.String()], nil
}

func (f *fakeChain) GetUserStakingAccount(ctx context.Context, wallet solanago.PublicKey) (*accounts.UserStakingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	mints := f.wallets[wallet.String()]
	if mints == nil {
		return accounts.EmptyUserStaking(wallet), nil
	}
	return &accounts.UserStakingRecord{
		IsInitialized: true,
		Owner:         wallet,
		StakedCount:   uint32(len(mints)),
		StakedMints:   mints,
	}, nil
}

func (f *fakeChain) SweepProgramAccounts(ctx context.Context, cursor string, limit int) (*solana.SweepPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.stakes))
	for name := range f.stakes {
		if name > cursor {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	page := &solana.SweepPage{Total: len(f.stakes)}
	if len(names) > limit {
		names = names[:limit]
		page.NextCursor = names[len(names)-1]
	}
	page.Scanned = len(names)
	for _, name := range names {
		page.Stakes = append(page.Stakes, &solana.SweptStake{Address: solanago.MustPublicKeyFromBase58(name), Record: f.stakes[name]})
	}
	return page, nil
}

func testKey(seed byte) solanago.PublicKey {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	return solanago.PublicKeyFromBytes(b)
}

var (
	owner    = testKey(200)
	stranger = testKey(201)
	clock    = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
)

func activeStake(mint solanago.PublicKey, holder solanago.PublicKey) *accounts.StakeRecord {
	return &accounts.StakeRecord{
		IsInitialized:     true,
		NftMint:           mint,
		Owner:             holder,
		StakedAt:          1_735_689_600,
		LastUpdateTime:    1_735_689_600,
		ReleaseTime:       1_735_689_600 + 30*86400 + 1,
		RewardRatePerDay:  250,
		AccumulatedReward: 500,
		TierMultiplier:    4,
	}
}

func setup(t *testing.T) (*config.Config, *fakeChain, *postgres.PostgresMirrorStore, *Reconciler) {
	cfg := tests.GetConfig()
	cfg.ReconcilerConfig.AccountLimit = 100
	cfg.ReconcilerConfig.DefaultLimit = 50
	cfg.ReconcilerConfig.WalletConcurrency = 2
	l := tests.GetTestLogger(cfg)
	grm := tests.GetMigratedTestDatabase(t, cfg, l)
	store := postgres.NewPostgresMirrorStore(grm, l, cfg)
	chain := newFakeChain()
	ms := metrics.NewNoopMetricsSink()

	detector := discrepancy.NewDetector(chain, store, store, ms, l, cfg)
	synthesizer := metadata.NewSynthesizer(store, store, l, cfg)
	r := NewReconciler(chain, store, store, detector, synthesizer, ms, l, cfg)
	r.now = func() time.Time { return clock }
	return cfg, chain, store, r
}

type failingMirror struct {
	storage.MirrorStore
	failMint string
}

func (f *failingMirror) UpsertStakingRecord(ctx context.Context, row *storage.StakingRow) (int64, error) {
	if row.MintAddress == f.failMint {
		return 0, &storage.MirrorWriteError{Op: "upsert", MintAddress: row.MintAddress, Err: errors.New("connection reset")}
	}
	return f.MirrorStore.UpsertStakingRecord(ctx, row)
}

func newReconcilerWithMirror(cfg *config.Config, chain *fakeChain, store *postgres.PostgresMirrorStore, mirror storage.MirrorStore) *Reconciler {
	l := tests.GetTestLogger(cfg)
	ms := metrics.NewNoopMetricsSink()
	detector := discrepancy.NewDetector(chain, store, store, ms, l, cfg)
	synthesizer := metadata.NewSynthesizer(mirror, store, l, cfg)
	r := NewReconciler(chain, mirror, store, detector, synthesizer, ms, l, cfg)
	r.now = func() time.Time { return clock }
	return r
}

func seedRow(t *testing.T, store *postgres.PostgresMirrorStore, mint solanago.PublicKey, withImage bool) {
	verified := clock.Add(-time.Hour)
	row := &storage.StakingRow{
		MintAddress:     mint.String(),
		WalletAddress:   owner.String(),
		NftId:           "5",
		StakedAt:        time.Unix(1_735_689_600, 0).UTC(),
		ReleaseDate:     time.Unix(1_735_689_600+30*86400, 0).UTC(),
		DailyRewardRate: decimal.NewFromInt(250),
		TotalRewards:    decimal.NewFromInt(7500),
		EarnedSoFar:     decimal.Zero,
		Status:          storage.StatusStaked,
		LastVerified:    &verified,
	}
	if withImage {
		row.Image = "ipfs://cid/0005.png"
		row.ImageUrl = "ipfs://cid/0005.png"
	}
	_, err := store.UpsertStakingRecord(context.Background(), row)
	assert.Nil(t, err)
}

func Test_SyncNFT(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects an invalid mint before reading the chain", func(t *testing.T) {
		_, chain, _, r := setup(t)
		_, err := r.SyncNFT(ctx, "not-a-mint")
		assert.True(t, security.IsValidationError(err))
		assert.Equal(t, 0, chain.calls)
	})
	t.Run("Upserts an active stake with derived fields", func(t *testing.T) {
		_, chain, store, r := setup(t)
		mint := testKey(1)
		chain.stakes[mint.String()] = activeStake(mint, owner)

		res, err := r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, ActionUpserted, res.Action)
		assert.Equal(t, int64(1), res.RowsAffected)

		row, err := store.GetStakingRow(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusStaked, row.Status)
		assert.Equal(t, accounts.TierEpic, row.NftTier)
		assert.Equal(t, int64(31), row.StakingPeriod)
		assert.True(t, row.TotalRewards.Equal(decimal.NewFromInt(250*31)))
		assert.True(t, row.EarnedSoFar.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, metadata.HashMintId(mint.String()), row.NftId)
		assert.Equal(t, "SOLARA #"+row.NftId, row.NftName)
		assert.True(t, row.HasImage())
		assert.Equal(t, owner.String(), row.WalletAddress)
	})
	t.Run("Is idempotent", func(t *testing.T) {
		_, chain, store, r := setup(t)
		mint := testKey(6)
		chain.stakes[mint.String()] = activeStake(mint, owner)

		_, err := r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		first, err := store.GetStakingRow(ctx, mint.String())
		assert.Nil(t, err)

		_, err = r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		second, err := store.GetStakingRow(ctx, mint.String())
		assert.Nil(t, err)

		second.UpdatedAt = first.UpdatedAt
		assert.Equal(t, first, second)

		rows, err := store.ListStakedRows(ctx)
		assert.Nil(t, err)
		assert.Len(t, rows, 1)
	})
	t.Run("Marks a vanished stake as unstaked once", func(t *testing.T) {
		_, _, store, r := setup(t)
		mint := testKey(2)
		seedRow(t, store, mint, true)

		res, err := r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, MessageNotStaked, res.Message)
		assert.Equal(t, ActionMarkedUnstaked, res.Action)

		again, err := r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, ActionUnchanged, again.Action)
		assert.Equal(t, int64(0), again.RowsAffected)

		row, err := store.GetStakingRow(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusUnstaked, row.Status)
	})
	t.Run("Reports an unstaked chain record", func(t *testing.T) {
		_, chain, store, r := setup(t)
		mint := testKey(3)
		record := activeStake(mint, owner)
		record.IsUnstaked = true
		chain.stakes[mint.String()] = record
		seedRow(t, store, mint, true)

		res, err := r.SyncNFT(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, MessageUnstaked, res.Message)
		assert.Equal(t, int64(1), res.RowsAffected)
	})
	t.Run("Fails closed when the chain is unavailable", func(t *testing.T) {
		_, chain, store, r := setup(t)
		mint := testKey(4)
		chain.failFor[mint.String()] = true
		seedRow(t, store, mint, true)

		_, err := r.SyncNFT(ctx, mint.String())
		assert.True(t, errors.Is(err, solana.ErrChainUnavailable))

		row, err := store.GetStakingRow(ctx, mint.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusStaked, row.Status)
	})
}

func Test_SyncWalletNFTs(t *testing.T) {
	ctx := context.Background()

	t.Run("Synchronizes each staked mint independently", func(t *testing.T) {
		_, chain, store, r := setup(t)
		good1, good2, released, foreign, broken := testKey(10), testKey(11), testKey(12), testKey(13), testKey(14)
		chain.stakes[good1.String()] = activeStake(good1, owner)
		chain.stakes[good2.String()] = activeStake(good2, owner)
		chain.stakes[foreign.String()] = activeStake(foreign, stranger)
		chain.failFor[broken.String()] = true
		chain.wallets[owner.String()] = []solanago.PublicKey{good1, good2, released, foreign, broken}

		res, err := r.SyncWalletNFTs(ctx, owner.String())
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 5, res.Total)
		assert.Equal(t, 2, res.Count)

		statuses := map[string]string{}
		for _, item := range res.Results {
			statuses[item.MintAddress] = item.Status
		}
		assert.Equal(t, ItemSynchronized, statuses[good1.String()])
		assert.Equal(t, ItemSynchronized, statuses[good2.String()])
		assert.Equal(t, ItemSkipped, statuses[released.String()])
		assert.Equal(t, ItemSkipped, statuses[foreign.String()])
		assert.Equal(t, ItemError, statuses[broken.String()])

		rows, err := store.ListStakedRows(ctx)
		assert.Nil(t, err)
		assert.Len(t, rows, 2)
	})
	t.Run("Succeeds with no staked mints", func(t *testing.T) {
		_, _, _, r := setup(t)
		res, err := r.SyncWalletNFTs(ctx, owner.String())
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, res.Total)
		assert.Equal(t, MessageNoWalletStakes, res.Message)
	})
	t.Run("Rejects an invalid wallet", func(t *testing.T) {
		_, _, _, r := setup(t)
		_, err := r.SyncWalletNFTs(ctx, "xyz")
		assert.True(t, security.IsValidationError(err))
	})
}

func Test_RunSyncCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("Repairs every discrepancy class", func(t *testing.T) {
		_, chain, store, r := setup(t)
		gone, imageless, untracked := testKey(20), testKey(21), testKey(22)
		chain.stakes[imageless.String()] = activeStake(imageless, owner)
		chain.stakes[untracked.String()] = activeStake(untracked, owner)
		seedRow(t, store, gone, true)
		seedRow(t, store, imageless, false)

		var progress [][2]int
		res, err := r.RunSyncCheck(ctx, SyncOptions{
			Limit:             50,
			FixMissingRecords: true,
			UpdateMetadata:    true,
			OnProgress:        func(done, total int) { progress = append(progress, [2]int{done, total}) },
		})
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.Checked)
		assert.Equal(t, 1, res.Created)
		assert.Equal(t, 2, res.Updated)
		assert.Equal(t, 0, res.Errors)
		assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

		row, err := store.GetStakingRow(ctx, gone.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusUnstaked, row.Status)

		row, err = store.GetStakingRow(ctx, imageless.String())
		assert.Nil(t, err)
		assert.True(t, row.HasImage())

		row, err = store.GetStakingRow(ctx, untracked.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusStaked, row.Status)

		second, err := r.RunSyncCheck(ctx, SyncOptions{FixMissingRecords: true, UpdateMetadata: true})
		assert.Nil(t, err)
		assert.Equal(t, 0, second.Created)
		assert.Equal(t, 0, second.Updated)
		assert.Equal(t, 0, second.Details[0].Found)
	})
	t.Run("Honors limit and repair flags", func(t *testing.T) {
		_, chain, store, r := setup(t)
		for seed := byte(30); seed < 33; seed++ {
			mint := testKey(seed)
			chain.stakes[mint.String()] = activeStake(mint, owner)
		}
		imageless := testKey(40)
		chain.stakes[imageless.String()] = activeStake(imageless, owner)
		seedRow(t, store, imageless, false)

		res, err := r.RunSyncCheck(ctx, SyncOptions{Limit: 2, FixMissingRecords: true, UpdateMetadata: false})
		assert.Nil(t, err)
		assert.Equal(t, 2, res.Created)
		assert.Equal(t, 0, res.Updated)

		res, err = r.RunSyncCheck(ctx, SyncOptions{Limit: 2, FixMissingRecords: false, UpdateMetadata: true})
		assert.Nil(t, err)
		assert.Equal(t, 0, res.Created)
		assert.Equal(t, 1, res.Updated)
	})
	t.Run("Counts item failures without failing the run", func(t *testing.T) {
		_, chain, store, r := setup(t)
		flaky := testKey(50)
		chain.stakes[flaky.String()] = activeStake(flaky, owner)
		chain.failFor[flaky.String()] = true
		res, err := r.RunSyncCheck(ctx, SyncOptions{Limit: 10, FixMissingRecords: true})
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.Errors)
		assert.Len(t, res.Details[0].Failures, 1)

		_, err = store.GetStakingRow(ctx, flaky.String())
		assert.True(t, errors.Is(err, storage.ErrRowNotFound))
	})
	t.Run("Isolates a failed mirror write", func(t *testing.T) {
		cfg, chain, store, _ := setup(t)
		broken := testKey(72)
		mirror := &failingMirror{MirrorStore: store, failMint: broken.String()}
		r := newReconcilerWithMirror(cfg, chain, store, mirror)

		for seed := byte(70); seed < 75; seed++ {
			mint := testKey(seed)
			chain.stakes[mint.String()] = activeStake(mint, owner)
		}

		res, err := r.RunSyncCheck(ctx, SyncOptions{Limit: 10, FixMissingRecords: true})
		assert.Nil(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 4, res.Created)
		assert.Equal(t, 1, res.Errors)
		assert.Len(t, res.Details[0].Failures, 1)
		assert.Equal(t, broken.String(), res.Details[0].Failures[0].MintAddress)

		rows, err := store.ListStakedRows(ctx)
		assert.Nil(t, err)
		assert.Len(t, rows, 4)
		_, err = store.GetStakingRow(ctx, broken.String())
		assert.True(t, errors.Is(err, storage.ErrRowNotFound))
	})
	t.Run("Does not rewrite images of rows marked unstaked", func(t *testing.T) {
		_, _, store, r := setup(t)
		gone := testKey(80)
		seedRow(t, store, gone, false)

		res, err := r.RunSyncCheck(ctx, SyncOptions{Limit: 10, UpdateMetadata: true})
		assert.Nil(t, err)
		assert.Equal(t, 1, res.Details[0].MissingOnChain)
		assert.Equal(t, 1, res.Details[0].ImageUrlMissing)
		assert.Equal(t, 1, res.Updated)
		assert.Equal(t, 0, res.Errors)

		row, err := store.GetStakingRow(ctx, gone.String())
		assert.Nil(t, err)
		assert.Equal(t, storage.StatusUnstaked, row.Status)
		assert.False(t, row.HasImage())
	})
	t.Run("Delegates to the wallet sync", func(t *testing.T) {
		_, chain, _, r := setup(t)
		mint := testKey(60)
		chain.stakes[mint.String()] = activeStake(mint, owner)
		chain.wallets[owner.String()] = []solanago.PublicKey{mint}

		res, err := r.RunSyncCheck(ctx, SyncOptions{WalletAddress: owner.String()})
		assert.Nil(t, err)
		assert.Equal(t, 1, res.Checked)
		assert.Equal(t, 1, res.Updated)
		assert.Equal(t, "wallet_sync", res.Details[0].Type)
	})
}
