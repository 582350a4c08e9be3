package discrepancy

import (
	"context"
	"encoding/json"
	"io"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/internal/metrics/metricsTypes"
	"github.com/tesola/staking-sync/pkg/accounts"
	"github.com/tesola/staking-sync/pkg/clients/solana"
	"github.com/tesola/staking-sync/pkg/storage"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// SweepCursorName keys the detector's position in sweep_cursors.
const SweepCursorName = "discrepancy_sweep"

type Issue string

const (
	IssueMissingInDb     Issue = "missing_in_db"
	IssueMissingOnChain  Issue = "missing_on_chain"
	IssueMissingImageUrl Issue = "missing_image_url"
)

type ChainReader interface {
	GetStakeAccount(ctx context.Context, mint solanago.PublicKey) (*accounts.StakeRecord, error)
	SweepProgramAccounts(ctx context.Context, cursor string, limit int) (*solana.SweepPage, error)
}

// MirrorReader is the read side of storage.MirrorStore used by the detector.
type MirrorReader interface {
	ListStakedRows(ctx context.Context) ([]*storage.StakingRow, error)
	StakedMintSet(ctx context.Context, mintAddresses []string) (map[string]bool, error)
}

type Discrepancy struct {
	MintAddress   string `json:"mintAddress" csv:"mint_address"`
	WalletAddress string `json:"walletAddress" csv:"wallet_address"`
	Issue         Issue  `json:"issue" csv:"issue"`

	// OnChain is set for missing_in_db so the row can be created without a second read.
	OnChain *accounts.StakeRecord `json:"-" csv:"-"`
	// Row is set for issues found on mirror rows.
	Row *storage.StakingRow `json:"-" csv:"-"`
}

type Report struct {
	MissingInDatabase []*Discrepancy `json:"missingInDatabase"`
	MissingOnChain    []*Discrepancy `json:"missingOnChain"`
	ImageUrlMissing   []*Discrepancy `json:"imageUrlMissing"`
	Discrepancies     []*Discrepancy `json:"discrepancies"`

	// TotalChecked is the number of chain accounts examined by this sweep page.
	TotalChecked int `json:"totalChecked"`
	// TotalOnChain is the population the sweep is walking.
	TotalOnChain int    `json:"totalOnChain"`
	MirrorStaked int    `json:"mirrorStaked"`
	Skipped      int    `json:"skipped"`
	Cursor       string `json:"cursor"`
	NextCursor   string `json:"nextCursor"`
	Wrapped      bool   `json:"wrapped"`

	byMint *orderedmap.OrderedMap[string, []Issue]
}

func newReport() *Report {
	return &Report{
		MissingInDatabase: make([]*Discrepancy, 0),
		MissingOnChain:    make([]*Discrepancy, 0),
		ImageUrlMissing:   make([]*Discrepancy, 0),
		Discrepancies:     make([]*Discrepancy, 0),
		byMint:            orderedmap.New[string, []Issue](),
	}
}

func (r *Report) add(d *Discrepancy) {
	switch d.Issue {
	case IssueMissingInDb:
		r.MissingInDatabase = append(r.MissingInDatabase, d)
	case IssueMissingOnChain:
		r.MissingOnChain = append(r.MissingOnChain, d)
	case IssueMissingImageUrl:
		r.ImageUrlMissing = append(r.ImageUrlMissing, d)
	}
	r.Discrepancies = append(r.Discrepancies, d)

	issues, _ := r.byMint.Get(d.MintAddress)
	r.byMint.Set(d.MintAddress, append(issues, d.Issue))
}

// IssuesFor lists the issues recorded for a mint in detection order.
func (r *Report) IssuesFor(mint string) []Issue {
	issues, _ := r.byMint.Get(mint)
	return issues
}

// HasIssue reports whether issue was recorded for mint.
func (r *Report) HasIssue(mint string, issue Issue) bool {
	for _, i := range r.IssuesFor(mint) {
		if i == issue {
			return true
		}
	}
	return false
}

type MintIssues struct {
	MintAddress string  `json:"mintAddress"`
	Issues      []Issue `json:"issues"`
}

// ByMint groups the issues per mint, in first-seen order.
func (r *Report) ByMint() []*MintIssues {
	grouped := make([]*MintIssues, 0, r.byMint.Len())
	for pair := r.byMint.Oldest(); pair != nil; pair = pair.Next() {
		grouped = append(grouped, &MintIssues{MintAddress: pair.Key, Issues: pair.Value})
	}
	return grouped
}

func (r *Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		IssuesByMint []*MintIssues `json:"issuesByMint"`
	}{plain(*r), r.ByMint()})
}

func (r *Report) WriteCSV(w io.Writer) error {
	if err := gocsv.Marshal(r.Discrepancies, w); err != nil {
		return errors.Wrap(err, "failed to write discrepancy csv")
	}
	return nil
}

type Detector struct {
	chain   ChainReader
	mirror  MirrorReader
	cursors storage.CursorStore
	logger  *zap.Logger
	metrics *metrics.MetricsSink
	config  *config.ReconcilerConfig
}

func NewDetector(chain ChainReader, mirror MirrorReader, cursors storage.CursorStore, ms *metrics.MetricsSink, l *zap.Logger, cfg *config.Config) *Detector {
	return &Detector{
		chain:   chain,
		mirror:  mirror,
		cursors: cursors,
		logger:  l,
		metrics: ms,
		config:  &cfg.ReconcilerConfig,
	}
}

func (d *Detector) CheckDiscrepancies(ctx context.Context) (*Report, error) {
	report := newReport()

	rows, err := d.mirror.ListStakedRows(ctx)
	if err != nil {
		return nil, err
	}
	report.MirrorStaked = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.checkMirrorRow(ctx, row, report)
	}

	if err := d.sweepPage(ctx, report); err != nil {
		return nil, err
	}

	for _, issue := range []Issue{IssueMissingInDb, IssueMissingOnChain, IssueMissingImageUrl} {
		count := 0
		for _, disc := range report.Discrepancies {
			if disc.Issue == issue {
				count++
			}
		}
		if count > 0 {
			_ = d.metrics.Incr(metricsTypes.Metric_Incr_Discrepancy, []metricsTypes.MetricsLabel{
				{Name: "issue", Value: string(issue)},
			}, float64(count))
		}
	}

	d.logger.Sugar().Infow("Discrepancy check complete",
		zap.Int("mirrorStaked", report.MirrorStaked),
		zap.Int("checked", report.TotalChecked),
		zap.Int("missingInDb", len(report.MissingInDatabase)),
		zap.Int("missingOnChain", len(report.MissingOnChain)),
		zap.Int("missingImageUrl", len(report.ImageUrlMissing)),
		zap.String("nextCursor", report.NextCursor),
	)
	return report, nil
}

func (d *Detector) checkMirrorRow(ctx context.Context, row *storage.StakingRow, report *Report) {
	mint, err := solanago.PublicKeyFromBase58(row.MintAddress)
	if err != nil {
		d.logger.Sugar().Warnw("Mirror row has an invalid mint address",
			zap.String("mint", row.MintAddress),
			zap.Error(err),
		)
		report.Skipped++
		return
	}

	record, err := d.chain.GetStakeAccount(ctx, mint)
	if err != nil {
		d.logger.Sugar().Errorw("Failed to read stake account, skipping row",
			zap.String("mint", row.MintAddress),
			zap.Error(err),
		)
		report.Skipped++
	} else if record == nil || !record.Active() {
		report.add(&Discrepancy{
			MintAddress:   row.MintAddress,
			WalletAddress: row.WalletAddress,
			Issue:         IssueMissingOnChain,
			Row:           row,
		})
	}

	if !row.HasImage() {
		report.add(&Discrepancy{
			MintAddress:   row.MintAddress,
			WalletAddress: row.WalletAddress,
			Issue:         IssueMissingImageUrl,
			Row:           row,
		})
	}
}

func (d *Detector) sweepPage(ctx context.Context, report *Report) error {
	cursor, err := d.cursors.GetSweepCursor(ctx, SweepCursorName)
	if err != nil {
		d.logger.Sugar().Warnw("Failed to load sweep cursor, starting from the beginning", zap.Error(err))
		cursor = ""
	}
	report.Cursor = cursor

	page, err := d.chain.SweepProgramAccounts(ctx, cursor, d.config.AccountLimit)
	if err != nil {
		return err
	}
	report.TotalChecked = page.Scanned
	report.TotalOnChain = page.Total
	report.Skipped += page.Skipped
	report.NextCursor = page.NextCursor
	report.Wrapped = page.NextCursor == ""

	_ = d.metrics.Gauge(metricsTypes.Metric_Gauge_LastSweepChecked, float64(page.Scanned), nil)
	if page.Skipped > 0 {
		_ = d.metrics.Incr(metricsTypes.Metric_Incr_SweepSkipped, nil, float64(page.Skipped))
	}

	active := make([]*solana.SweptStake, 0, len(page.Stakes))
	mints := make([]string, 0, len(page.Stakes))
	for _, stake := range page.Stakes {
		if !stake.Record.Active() {
			continue
		}
		active = append(active, stake)
		mints = append(mints, stake.Record.NftMint.String())
	}

	staked, err := d.mirror.StakedMintSet(ctx, mints)
	if err != nil {
		return err
	}
	for _, stake := range active {
		mint := stake.Record.NftMint.String()
		if staked[mint] {
			continue
		}
		report.add(&Discrepancy{
			MintAddress:   mint,
			WalletAddress: stake.Record.Owner.String(),
			Issue:         IssueMissingInDb,
			OnChain:       stake.Record,
		})
	}

	if err := d.cursors.SaveSweepCursor(ctx, SweepCursorName, page.NextCursor); err != nil {
		d.logger.Sugar().Errorw("Failed to persist sweep cursor", zap.Error(err))
	}
	return nil
}
