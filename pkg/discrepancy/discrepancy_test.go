package discrepancy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
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
	"github.com/tesola/staking-sync/pkg/storage"
	"github.com/tesola/staking-sync/pkg/storage/postgres"
)

type fakeChain struct {
	stakes  map[string]*accounts.StakeRecord
	failFor map[string]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		stakes:  make(map[string]*accounts.StakeRecord),
		failFor: make(map[string]bool),
	}
}

func (f *fakeChain) GetStakeAccount(ctx context.Context, mint solanago.PublicKey) (*accounts.StakeRecord, error) {
	if f.failFor[mint.String()] {
		return nil, &solana.ChainUnavailableError{Method: "getAccountInfo", Err: errors.New("timeout")}
	}
	return f.stakes[mint.String()], nil
}

// SweepProgramAccounts pages over stake accounts keyed by the mint's string, mirroring the client's ordering.
func (f *fakeChain) SweepProgramAccounts(ctx context.Context, cursor string, limit int) (*solana.SweepPage, error) {
	names := make([]string, 0, len(f.stakes))
	for name := range f.stakes {
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if cursor != "" {
		start = sort.SearchStrings(names, cursor)
		if start < len(names) && names[start] == cursor {
			start++
		}
	}
	end := start + limit
	if end > len(names) {
		end = len(names)
	}
	page := &solana.SweepPage{Scanned: end - start, Total: len(names)}
	for _, name := range names[start:end] {
		page.Stakes = append(page.Stakes, &solana.SweptStake{
			Address: solanago.MustPublicKeyFromBase58(name),
			Record:  f.stakes[name],
		})
	}
	if end < len(names) {
		page.NextCursor = names[end-1]
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

var owner = testKey(200)

func activeStake(mint solanago.PublicKey) *accounts.StakeRecord {
	return &accounts.StakeRecord{
		IsInitialized:    true,
		NftMint:          mint,
		Owner:            owner,
		StakedAt:         1_700_000_000,
		LastUpdateTime:   1_700_000_000,
		ReleaseTime:      1_700_000_000 + 30*86400,
		RewardRatePerDay: 100,
		TierMultiplier:   2,
	}
}

func setup(t *testing.T) (*config.Config, *fakeChain, *postgres.PostgresMirrorStore, *Detector) {
	cfg := tests.GetConfig()
	cfg.ReconcilerConfig.AccountLimit = 100
	l := tests.GetTestLogger(cfg)
	grm := tests.GetMigratedTestDatabase(t, cfg, l)
	store := postgres.NewPostgresMirrorStore(grm, l, cfg)
	chain := newFakeChain()
	return cfg, chain, store, NewDetector(chain, store, store, metrics.NewNoopMetricsSink(), l, cfg)
}

func mirrorRow(t *testing.T, store *postgres.PostgresMirrorStore, mint solanago.PublicKey, withImage bool) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	row := &storage.StakingRow{
		MintAddress:     mint.String(),
		WalletAddress:   owner.String(),
		NftId:           "1",
		StakedAt:        now,
		ReleaseDate:     now.Add(30 * 24 * time.Hour),
		DailyRewardRate: decimal.NewFromInt(100),
		TotalRewards:    decimal.NewFromInt(3000),
		EarnedSoFar:     decimal.Zero,
		Status:          storage.StatusStaked,
		LastVerified:    &now,
	}
	if withImage {
		row.Image = "ipfs://cid/0001.png"
		row.ImageUrl = "ipfs://cid/0001.png"
	}
	_, err := store.UpsertStakingRecord(context.Background(), row)
	assert.Nil(t, err)
}

func Test_CheckDiscrepancies(t *testing.T) {
	ctx := context.Background()

	t.Run("Classifies each issue", func(t *testing.T) {
		_, chain, store, detector := setup(t)

		healthy, gone, imageless, untracked, released := testKey(1), testKey(2), testKey(3), testKey(4), testKey(5)
		chain.stakes[healthy.String()] = activeStake(healthy)
		chain.stakes[imageless.String()] = activeStake(imageless)
		chain.stakes[untracked.String()] = activeStake(untracked)
		unstaked := activeStake(released)
		unstaked.IsUnstaked = true
		chain.stakes[released.String()] = unstaked

		mirrorRow(t, store, healthy, true)
		mirrorRow(t, store, gone, true)
		mirrorRow(t, store, imageless, false)

		report, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 3, report.MirrorStaked)
		assert.Equal(t, 4, report.TotalChecked)
		assert.True(t, report.Wrapped)

		assert.Len(t, report.MissingOnChain, 1)
		assert.Equal(t, gone.String(), report.MissingOnChain[0].MintAddress)

		assert.Len(t, report.ImageUrlMissing, 1)
		assert.Equal(t, imageless.String(), report.ImageUrlMissing[0].MintAddress)

		assert.Len(t, report.MissingInDatabase, 1)
		assert.Equal(t, untracked.String(), report.MissingInDatabase[0].MintAddress)
		assert.Equal(t, owner.String(), report.MissingInDatabase[0].WalletAddress)
		assert.NotNil(t, report.MissingInDatabase[0].OnChain)

		assert.Len(t, report.Discrepancies, 3)
		assert.Nil(t, report.IssuesFor(healthy.String()))
		assert.Equal(t, []Issue{IssueMissingInDb}, report.IssuesFor(untracked.String()))
	})
	t.Run("Treats an unstaked chain record as missing on chain", func(t *testing.T) {
		_, chain, store, detector := setup(t)
		mint := testKey(9)
		record := activeStake(mint)
		record.IsUnstaked = true
		chain.stakes[mint.String()] = record
		mirrorRow(t, store, mint, true)

		report, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Len(t, report.MissingOnChain, 1)
		assert.Len(t, report.MissingInDatabase, 0)
	})
	t.Run("Skips rows whose chain read fails", func(t *testing.T) {
		_, chain, store, detector := setup(t)
		mint := testKey(7)
		chain.failFor[mint.String()] = true
		mirrorRow(t, store, mint, true)

		report, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Len(t, report.MissingOnChain, 0)
		assert.Equal(t, 1, report.Skipped)
	})
	t.Run("Examines at most the account limit per call", func(t *testing.T) {
		_, chain, _, detector := setup(t)
		for seed := 1; seed <= 150; seed++ {
			mint := testKey(byte(seed))
			chain.stakes[mint.String()] = activeStake(mint)
		}

		report, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 100, report.TotalChecked)
		assert.Equal(t, 150, report.TotalOnChain)
		assert.Len(t, report.MissingInDatabase, 100)
		assert.NotEqual(t, "", report.NextCursor)

		rest, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 50, rest.TotalChecked)
		assert.Len(t, rest.MissingInDatabase, 50)
		assert.True(t, rest.Wrapped)
	})
	t.Run("Advances and wraps the sweep cursor", func(t *testing.T) {
		cfg, chain, store, detector := setup(t)
		cfg.ReconcilerConfig.AccountLimit = 2
		for seed := byte(1); seed <= 3; seed++ {
			mint := testKey(seed)
			chain.stakes[mint.String()] = activeStake(mint)
		}

		first, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 2, first.TotalChecked)
		assert.NotEqual(t, "", first.NextCursor)
		assert.False(t, first.Wrapped)

		saved, err := store.GetSweepCursor(ctx, SweepCursorName)
		assert.Nil(t, err)
		assert.Equal(t, first.NextCursor, saved)

		second, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 1, second.TotalChecked)
		assert.Equal(t, first.NextCursor, second.Cursor)
		assert.True(t, second.Wrapped)

		seen := map[string]bool{}
		for _, d := range append(first.MissingInDatabase, second.MissingInDatabase...) {
			assert.False(t, seen[d.MintAddress])
			seen[d.MintAddress] = true
		}
		assert.Len(t, seen, 3)

		third, err := detector.CheckDiscrepancies(ctx)
		assert.Nil(t, err)
		assert.Equal(t, "", third.Cursor)
		assert.Equal(t, 2, third.TotalChecked)
	})
}

func Test_ReportWriteCSV(t *testing.T) {
	report := newReport()
	report.add(&Discrepancy{MintAddress: "mintA", WalletAddress: "walletA", Issue: IssueMissingOnChain})
	report.add(&Discrepancy{MintAddress: "mintA", WalletAddress: "walletA", Issue: IssueMissingImageUrl})
	report.add(&Discrepancy{MintAddress: "mintB", WalletAddress: "walletB", Issue: IssueMissingInDb})

	var buf bytes.Buffer
	assert.Nil(t, report.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"mint_address,wallet_address,issue",
		"mintA,walletA,missing_on_chain",
		"mintA,walletA,missing_image_url",
		"mintB,walletB,missing_in_db",
	}, lines)
	assert.Equal(t, []Issue{IssueMissingOnChain, IssueMissingImageUrl}, report.IssuesFor("mintA"))
}

func Test_ReportByMint(t *testing.T) {
	report := newReport()
	report.add(&Discrepancy{MintAddress: "mintB", Issue: IssueMissingInDb})
	report.add(&Discrepancy{MintAddress: "mintA", Issue: IssueMissingOnChain})
	report.add(&Discrepancy{MintAddress: "mintA", Issue: IssueMissingImageUrl})

	assert.True(t, report.HasIssue("mintA", IssueMissingOnChain))
	assert.False(t, report.HasIssue("mintB", IssueMissingOnChain))
	assert.False(t, report.HasIssue("mintC", IssueMissingInDb))

	grouped := report.ByMint()
	assert.Len(t, grouped, 2)
	assert.Equal(t, "mintB", grouped[0].MintAddress)
	assert.Equal(t, []Issue{IssueMissingOnChain, IssueMissingImageUrl}, grouped[1].Issues)

	encoded, err := json.Marshal(report)
	assert.Nil(t, err)
	decoded := map[string]interface{}{}
	assert.Nil(t, json.Unmarshal(encoded, &decoded))
	assert.Len(t, decoded["discrepancies"], 3)
	byMint, ok := decoded["issuesByMint"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, byMint, 2)
	assert.Equal(t, map[string]interface{}{
		"mintAddress": "mintA",
		"issues":      []interface{}{"missing_on_chain", "missing_image_url"},
	}, byMint[1])
}
