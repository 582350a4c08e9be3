package rpcServer

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/tesola/staking-sync/pkg/reconciler"
	"github.com/tesola/staking-sync/pkg/security"
)

const (
	adminKeyHeader   = "x-admin-key"
	cronSecretHeader = "x-cron-secret"

	ActionTestAuth           = "test_auth"
	ActionCheckDiscrepancies = "check_discrepancies"
	ActionSyncNFT            = "sync_nft"
	ActionSyncWallet         = "sync_wallet"
	ActionSyncAll            = "sync_all"
	ActionUpdateNFTMetadata  = "update_nft_metadata"
)

type SyncRequest struct {
	Action            string `json:"action"`
	MintAddress       string `json:"mintAddress"`
	WalletAddress     string `json:"walletAddress"`
	Limit             *int   `json:"limit"`
	FixMissingRecords *bool  `json:"fixMissingRecords"`
	UpdateMetadata    *bool  `json:"updateMetadata"`
}

func (s *RpcServer) syncOptions(req *SyncRequest) reconciler.SyncOptions {
	return reconciler.SyncOptions{
		Limit:             intOrDefault(req.Limit, s.globalConfig.ReconcilerConfig.DefaultLimit),
		FixMissingRecords: boolOrDefault(req.FixMissingRecords, true),
		UpdateMetadata:    boolOrDefault(req.UpdateMetadata, true),
		WalletAddress:     req.WalletAddress,
	}
}

// validateTarget rejects malformed addresses before any chain or database access.
func validateTarget(req *SyncRequest) error {
	switch req.Action {
	case ActionSyncNFT, ActionUpdateNFTMetadata:
		_, err := security.ValidateAddress("mintAddress", req.MintAddress)
		return err
	case ActionSyncWallet:
		_, err := security.ValidateAddress("walletAddress", req.WalletAddress)
		return err
	case ActionSyncAll:
		if req.WalletAddress != "" {
			_, err := security.ValidateAddress("walletAddress", req.WalletAddress)
			return err
		}
	}
	return nil
}

func (s *RpcServer) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.gate.ValidateAdminKey(r.Header.Get(adminKeyHeader)); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := &SyncRequest{}
	if err := decodeJSONBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateTarget(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	switch req.Action {
	case ActionTestAuth:
		writeJSON(w, http.StatusOK, true, "Authentication successful", nil)

	case ActionCheckDiscrepancies:
		span := s.syncLogger.Start(ActionCheckDiscrepancies)
		report, err := s.reconciler.CheckDiscrepancies(ctx)
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			s.writeError(w, r, err)
			return
		}
		span.Finish(ctx, map[string]int{
			"found":        len(report.Discrepancies),
			"totalChecked": report.TotalChecked,
		}, 0, nil)
		writeJSON(w, http.StatusOK, true, "Discrepancy check complete", report)

	case ActionSyncNFT:
		span := s.syncLogger.Start(reconciler.OperationSyncNFT).WithMint(req.MintAddress)
		res, err := s.reconciler.SyncNFT(ctx, req.MintAddress)
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			s.writeError(w, r, err)
			return
		}
		span.Finish(ctx, res, res.RowsAffected, nil)
		writeJSON(w, http.StatusOK, true, res.Message, res)

	case ActionSyncWallet:
		span := s.syncLogger.Start(reconciler.OperationSyncWallet).WithWallet(req.WalletAddress)
		res, err := s.reconciler.SyncWalletNFTs(ctx, req.WalletAddress)
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			s.writeError(w, r, err)
			return
		}
		span.Finish(ctx, res, int64(res.Count), nil)
		writeJSON(w, http.StatusOK, true, res.Message, res)

	case ActionSyncAll:
		s.runSyncAll(w, r, req, reconciler.OperationSyncAll)

	case ActionUpdateNFTMetadata:
		span := s.syncLogger.Start(reconciler.OperationUpdateMetadata).WithMint(req.MintAddress)
		res, err := s.reconciler.UpdateNFTMetadata(ctx, req.MintAddress)
		if err != nil {
			span.Finish(ctx, nil, 0, err)
			s.writeError(w, r, err)
			return
		}
		span.Finish(ctx, res, res.RowsAffected, nil)
		writeJSON(w, http.StatusOK, true, res.Message, res)

	default:
		s.writeError(w, r, &security.ValidationError{Field: "action", Value: req.Action, Reason: "is not a known action"})
	}
}

func (s *RpcServer) runSyncAll(w http.ResponseWriter, r *http.Request, req *SyncRequest, operation string) {
	ctx := r.Context()
	span := s.syncLogger.Start(operation).WithWallet(req.WalletAddress)
	res, err := s.reconciler.RunSyncCheck(ctx, s.syncOptions(req))
	if err != nil {
		span.Finish(ctx, nil, 0, err)
		s.writeError(w, r, errors.Wrap(err, "sync check failed"))
		return
	}
	span.Finish(ctx, res, int64(res.Created+res.Updated), nil)
	writeJSON(w, http.StatusOK, true, "Sync check complete", res)
}

func (s *RpcServer) handleCronSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.gate.ValidateCronSecret(r.Header.Get(cronSecretHeader)); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := &SyncRequest{}
	if err := decodeJSONBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Action = ActionSyncAll
	if err := validateTarget(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runSyncAll(w, r, req, "cron_sync")
}
