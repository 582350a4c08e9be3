package solana

import (
	"context"
	"net/http"
	"sort"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/pkg/accounts"
	"go.uber.org/zap"
)

const (
	DefaultSweepLimit = 100

	// getMultipleAccounts accepts at most 100 keys per request
	multipleAccountsChunkSize = 100

	// byte offset of StakeInfo.owner: discriminator, isInitialized, nftMint
	stakeOwnerOffset = accounts.DiscriminatorSize + 1 + 32
)

type Client struct {
	Logger       *zap.Logger
	rpcClient    *rpc.Client
	clientConfig *SolanaClientConfig
	programId    solanago.PublicKey
}

type SolanaClientConfig struct {
	RpcUrl     string
	ProgramId  string
	Commitment string
	// HTTPClient replaces the transport used for JSON-RPC calls when set.
	HTTPClient *http.Client
}

func ConvertGlobalConfigToSolanaConfig(cfg *config.SolanaConfig) *SolanaClientConfig {
	return &SolanaClientConfig{
		RpcUrl:     cfg.RpcUrl,
		ProgramId:  cfg.ProgramId,
		Commitment: cfg.Commitment,
	}
}

func NewClient(cfg *SolanaClientConfig, l *zap.Logger) (*Client, error) {
	if cfg.RpcUrl == "" {
		return nil, errors.New("solana rpc url is required")
	}
	programId, err := solanago.PublicKeyFromBase58(cfg.ProgramId)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid program id %q", cfg.ProgramId)
	}

	var rpcClient *rpc.Client
	if cfg.HTTPClient != nil {
		rpcClient = rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(cfg.RpcUrl, &jsonrpc.RPCClientOpts{
			HTTPClient: cfg.HTTPClient,
		}))
	} else {
		rpcClient = rpc.New(cfg.RpcUrl)
	}

	return &Client{
		Logger:       l,
		rpcClient:    rpcClient,
		clientConfig: cfg,
		programId:    programId,
	}, nil
}

func (c *Client) ProgramID() solanago.PublicKey {
	return c.programId
}

func (c *Client) commitment() rpc.CommitmentType {
	switch c.clientConfig.Commitment {
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// getAccountData returns nil data when the account does not exist.
func (c *Client) getAccountData(ctx context.Context, address solanago.PublicKey) ([]byte, error) {
	res, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solanago.EncodingBase64,
		Commitment: c.commitment(),
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, unavailable("getAccountInfo", err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, nil
	}
	return res.Value.Data.GetBinary(), nil
}

// GetStakeAccount returns nil without error when the stake account is absent or holds another layout.
func (c *Client) GetStakeAccount(ctx context.Context, mint solanago.PublicKey) (*accounts.StakeRecord, error) {
	address, err := StakePDA(c.programId, mint)
	if err != nil {
		return nil, err
	}
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	record, err := accounts.DecodeStake(data)
	if err != nil {
		c.Logger.Sugar().Debugw("Stake account did not decode, treating as absent",
			zap.String("mint", mint.String()),
			zap.String("address", address.String()),
			zap.Error(err),
		)
		return nil, nil
	}
	return record, nil
}

// GetUserStakingAccount returns an empty aggregate when the wallet has never staked.
func (c *Client) GetUserStakingAccount(ctx context.Context, wallet solanago.PublicKey) (*accounts.UserStakingRecord, error) {
	address, err := UserStakingPDA(c.programId, wallet)
	if err != nil {
		return nil, err
	}
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return accounts.EmptyUserStaking(wallet), nil
	}
	record, err := accounts.DecodeUserStaking(data)
	if err != nil {
		c.Logger.Sugar().Debugw("User staking account did not decode, treating as absent",
			zap.String("wallet", wallet.String()),
			zap.Error(err),
		)
		return accounts.EmptyUserStaking(wallet), nil
	}
	return record, nil
}

func (c *Client) GetPoolState(ctx context.Context) (*accounts.PoolState, error) {
	address, err := PoolStatePDA(c.programId)
	if err != nil {
		return nil, err
	}
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Wrapf(ErrPoolStateMissing, "address %s", address)
	}
	pool, err := accounts.DecodePoolState(data)
	if err != nil {
		return nil, errors.Wrapf(ErrPoolStateMissing, "address %s: %v", address, err)
	}
	return pool, nil
}

func (c *Client) stakeDiscriminatorFilter() rpc.RPCFilter {
	return rpc.RPCFilter{
		Memcmp: &rpc.RPCFilterMemcmp{
			Offset: 0,
			Bytes:  solanago.Base58(accounts.StakeSchema.Discriminator[:]),
		},
	}
}

// listStakeAddresses lists every stake account key without transferring account data.
func (c *Client) listStakeAddresses(ctx context.Context) ([]solanago.PublicKey, error) {
	zero := uint64(0)
	res, err := c.rpcClient.GetProgramAccountsWithOpts(ctx, c.programId, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment(),
		Encoding:   solanago.EncodingBase64,
		DataSlice:  &rpc.DataSlice{Offset: &zero, Length: &zero},
		Filters:    []rpc.RPCFilter{c.stakeDiscriminatorFilter()},
	})
	if err != nil {
		return nil, unavailable("getProgramAccounts", err)
	}
	keys := make([]solanago.PublicKey, 0, len(res))
	for _, acct := range res {
		if acct == nil {
			continue
		}
		keys = append(keys, acct.Pubkey)
	}
	return keys, nil
}

type SweptStake struct {
	Address solanago.PublicKey
	Record  *accounts.StakeRecord
}

type SweepPage struct {
	Stakes []*SweptStake
	// Scanned is the number of program accounts examined on this page.
	Scanned int
	// Skipped counts accounts that vanished or failed to decode.
	Skipped int
	// Total is the number of stake accounts the program currently owns.
	Total int
	// NextCursor resumes the sweep; it is empty once the last page has been returned.
	NextCursor string
}

// SweepProgramAccounts examines at most limit stake accounts whose address sorts after cursor.
func (c *Client) SweepProgramAccounts(ctx context.Context, cursor string, limit int) (*SweepPage, error) {
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	keys, err := c.listStakeAddresses(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Sort(byAddress{keys: keys, names: names})

	start := 0
	if cursor != "" {
		start = sort.SearchStrings(names, cursor)
		if start < len(names) && names[start] == cursor {
			start++
		}
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}

	page := &SweepPage{
		Stakes:  make([]*SweptStake, 0, end-start),
		Scanned: end - start,
		Total:   len(keys),
	}
	if end < len(keys) {
		page.NextCursor = names[end-1]
	}

	pageKeys := keys[start:end]
	for offset := 0; offset < len(pageKeys); offset += multipleAccountsChunkSize {
		chunkEnd := offset + multipleAccountsChunkSize
		if chunkEnd > len(pageKeys) {
			chunkEnd = len(pageKeys)
		}
		chunk := pageKeys[offset:chunkEnd]

		res, err := c.rpcClient.GetMultipleAccountsWithOpts(ctx, chunk, &rpc.GetMultipleAccountsOpts{
			Encoding:   solanago.EncodingBase64,
			Commitment: c.commitment(),
		})
		if err != nil {
			return nil, unavailable("getMultipleAccounts", err)
		}
		for i, key := range chunk {
			if res == nil || i >= len(res.Value) || res.Value[i] == nil || res.Value[i].Data == nil {
				page.Skipped++
				continue
			}
			record, err := accounts.DecodeStake(res.Value[i].Data.GetBinary())
			if err != nil {
				c.Logger.Sugar().Debugw("Skipping undecodable program account",
					zap.String("address", key.String()),
					zap.Error(err),
				)
				page.Skipped++
				continue
			}
			page.Stakes = append(page.Stakes, &SweptStake{Address: key, Record: record})
		}
	}
	return page, nil
}

// GetWalletStakes lists the active stakes owned by wallet using an owner memcmp filter.
func (c *Client) GetWalletStakes(ctx context.Context, wallet solanago.PublicKey) ([]*SweptStake, error) {
	res, err := c.rpcClient.GetProgramAccountsWithOpts(ctx, c.programId, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment(),
		Encoding:   solanago.EncodingBase64,
		Filters: []rpc.RPCFilter{
			c.stakeDiscriminatorFilter(),
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: stakeOwnerOffset,
					Bytes:  solanago.Base58(wallet[:]),
				},
			},
		},
	})
	if err != nil {
		return nil, unavailable("getProgramAccounts", err)
	}

	stakes := make([]*SweptStake, 0, len(res))
	for _, acct := range res {
		if acct == nil || acct.Account == nil || acct.Account.Data == nil {
			continue
		}
		record, err := accounts.DecodeStake(acct.Account.Data.GetBinary())
		if err != nil || !record.Active() || !record.Owner.Equals(wallet) {
			continue
		}
		stakes = append(stakes, &SweptStake{Address: acct.Pubkey, Record: record})
	}
	return stakes, nil
}

type byAddress struct {
	keys  []solanago.PublicKey
	names []string
}

func (b byAddress) Len() int           { return len(b.keys) }
func (b byAddress) Less(i, j int) bool { return b.names[i] < b.names[j] }
func (b byAddress) Swap(i, j int) {
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
	b.names[i], b.names[j] = b.names[j], b.names[i]
}
