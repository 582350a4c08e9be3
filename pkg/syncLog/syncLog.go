package syncLog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tesola/staking-sync/pkg/storage"
	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SyncLogger writes one sync_logs entry per reconciliation call. Write failures are logged and dropped.
type SyncLogger struct {
	store  storage.SyncLogStore
	logger *zap.Logger
	now    func() time.Time
}

func NewSyncLogger(store storage.SyncLogStore, l *zap.Logger) *SyncLogger {
	return &SyncLogger{
		store:  store,
		logger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type Span struct {
	logger        *SyncLogger
	operation     string
	started       time.Time
	MintAddress   string
	WalletAddress string
}

func (s *SyncLogger) Start(operation string) *Span {
	return &Span{
		logger:    s,
		operation: operation,
		started:   s.now(),
	}
}

func (sp *Span) WithMint(mint string) *Span {
	sp.MintAddress = mint
	return sp
}

func (sp *Span) WithWallet(wallet string) *Span {
	sp.WalletAddress = wallet
	return sp
}

// Finish records the outcome. details is encoded as JSON; err, when set, is added under "error".
func (sp *Span) Finish(ctx context.Context, details interface{}, changes int64, err error) *storage.SyncLog {
	s := sp.logger
	finished := s.now()

	entry := &storage.SyncLog{
		Id:            uuid.NewString(),
		Operation:     sp.operation,
		MintAddress:   sp.MintAddress,
		WalletAddress: sp.WalletAddress,
		Status:        StatusSuccess,
		DurationMs:    finished.Sub(sp.started).Milliseconds(),
		Changes:       changes,
		CreatedAt:     finished,
	}

	payload := map[string]interface{}{}
	if details != nil {
		payload["result"] = details
	}
	if err != nil {
		entry.Status = StatusError
		payload["error"] = err.Error()
	}
	encoded, jsonErr := json.Marshal(payload)
	if jsonErr != nil {
		s.logger.Sugar().Warnw("Failed to encode sync log details", zap.String("operation", sp.operation), zap.Error(jsonErr))
		encoded = []byte("{}")
	}
	entry.Details = string(encoded)

	if writeErr := s.store.InsertSyncLog(ctx, entry); writeErr != nil {
		s.logger.Sugar().Errorw("Failed to write sync log",
			zap.String("operation", sp.operation),
			zap.String("mint", sp.MintAddress),
			zap.Error(writeErr),
		)
	}
	return entry
}

func (s *SyncLogger) List(ctx context.Context, filter *storage.SyncLogFilter) ([]*storage.SyncLog, error) {
	return s.store.ListSyncLogs(ctx, filter)
}
