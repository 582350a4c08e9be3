package accounts

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const secondsPerDay = 86400

const (
	TierCommon    = "Common"
	TierRare      = "RARE"
	TierEpic      = "EPIC"
	TierLegendary = "LEGENDARY"
)

type StakeRecord struct {
	IsInitialized     bool
	NftMint           solana.PublicKey
	Owner             solana.PublicKey
	StakedAt          int64
	LastUpdateTime    int64
	ReleaseTime       int64
	RewardRatePerDay  uint64
	AccumulatedReward uint64
	TierMultiplier    uint8
	IsUnstaked        bool
}

func DecodeStake(data []byte) (*StakeRecord, error) {
	v, err := StakeSchema.decode(data)
	if err != nil {
		return nil, err
	}
	return &StakeRecord{
		IsInitialized:     v.Bool("isInitialized"),
		NftMint:           v.Key("nftMint"),
		Owner:             v.Key("owner"),
		StakedAt:          v.Int("stakedAt"),
		LastUpdateTime:    v.Int("lastUpdateTime"),
		ReleaseTime:       v.Int("releaseTime"),
		RewardRatePerDay:  v.Uint("rewardRatePerDay"),
		AccumulatedReward: v.Uint("accumulatedReward"),
		TierMultiplier:    uint8(v.Uint("tierMultiplier")),
		IsUnstaked:        v.Bool("isUnstaked"),
	}, nil
}

func (s *StakeRecord) MarshalBinary() ([]byte, error) {
	v := NewValues().
		SetBool("isInitialized", s.IsInitialized).
		SetKey("nftMint", s.NftMint).
		SetKey("owner", s.Owner).
		SetInt("stakedAt", s.StakedAt).
		SetInt("lastUpdateTime", s.LastUpdateTime).
		SetInt("releaseTime", s.ReleaseTime).
		SetUint("rewardRatePerDay", s.RewardRatePerDay).
		SetUint("accumulatedReward", s.AccumulatedReward).
		SetUint("tierMultiplier", uint64(s.TierMultiplier)).
		SetBool("isUnstaked", s.IsUnstaked)
	return StakeSchema.encode(v), nil
}

// Active is true for an initialized stake that has not been withdrawn.
func (s *StakeRecord) Active() bool {
	return s.IsInitialized && !s.IsUnstaked
}

func (s *StakeRecord) Tier() string {
	switch {
	case s.TierMultiplier >= 8:
		return TierLegendary
	case s.TierMultiplier >= 4:
		return TierEpic
	case s.TierMultiplier >= 2:
		return TierRare
	default:
		return TierCommon
	}
}

// StakingPeriodDays rounds the lock duration up to whole days.
func (s *StakeRecord) StakingPeriodDays() int64 {
	seconds := s.ReleaseTime - s.StakedAt
	if seconds <= 0 {
		return 0
	}
	return (seconds + secondsPerDay - 1) / secondsPerDay
}

func (s *StakeRecord) DailyRewardRate() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(s.RewardRatePerDay), 0)
}

func (s *StakeRecord) TotalRewards() decimal.Decimal {
	return s.DailyRewardRate().Mul(decimal.NewFromInt(s.StakingPeriodDays()))
}

func (s *StakeRecord) AccumulatedRewards() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(s.AccumulatedReward), 0)
}

func (s *StakeRecord) StakedAtTime() time.Time { return time.Unix(s.StakedAt, 0).UTC() }
func (s *StakeRecord) ReleaseAtTime() time.Time { return time.Unix(s.ReleaseTime, 0).UTC() }
func (s *StakeRecord) LastUpdateAtTime() time.Time { return time.Unix(s.LastUpdateTime, 0).UTC() }

type UserStakingRecord struct {
	IsInitialized   bool
	Owner           solana.PublicKey
	StakedCount     uint32
	StakedMints     []solana.PublicKey
	CollectionBonus uint16
	LastUpdated     int64
}

// EmptyUserStaking is the aggregate reported for a wallet without an on-chain account.
func EmptyUserStaking(owner solana.PublicKey) *UserStakingRecord {
	return &UserStakingRecord{
		Owner:       owner,
		StakedMints: []solana.PublicKey{},
	}
}

func DecodeUserStaking(data []byte) (*UserStakingRecord, error) {
	v, err := UserStakingSchema.decode(data)
	if err != nil {
		return nil, err
	}
	return &UserStakingRecord{
		IsInitialized:   v.Bool("isInitialized"),
		Owner:           v.Key("owner"),
		StakedCount:     uint32(v.Uint("stakedCount")),
		StakedMints:     v.KeyList("stakedMints"),
		CollectionBonus: uint16(v.Uint("collectionBonus")),
		LastUpdated:     v.Int("lastUpdated"),
	}, nil
}

func (u *UserStakingRecord) MarshalBinary() ([]byte, error) {
	v := NewValues().
		SetBool("isInitialized", u.IsInitialized).
		SetKey("owner", u.Owner).
		SetUint("stakedCount", uint64(u.StakedCount)).
		SetKeyList("stakedMints", u.StakedMints).
		SetUint("collectionBonus", uint64(u.CollectionBonus)).
		SetInt("lastUpdated", u.LastUpdated)
	return UserStakingSchema.encode(v), nil
}

type PoolState struct {
	Admin                    solana.PublicKey
	RewardRate               uint64
	EmergencyFeePercent      uint8
	Paused                   bool
	TotalStaked              uint64
	CommonMultiplier         uint64
	RareMultiplier           uint64
	EpicMultiplier           uint64
	LegendaryMultiplier      uint64
	LongStakingBonus         uint64
	MaxNftsPerUser           uint8
	TimeMultiplierIncrement  uint64
	TimeMultiplierPeriodDays uint64
	MaxTimeMultiplier        uint64
}

func DecodePoolState(data []byte) (*PoolState, error) {
	v, err := PoolStateSchema.decode(data)
	if err != nil {
		return nil, err
	}
	return &PoolState{
		Admin:                    v.Key("admin"),
		RewardRate:               v.Uint("rewardRate"),
		EmergencyFeePercent:      uint8(v.Uint("emergencyFeePercent")),
		Paused:                   v.Bool("paused"),
		TotalStaked:              v.Uint("totalStaked"),
		CommonMultiplier:         v.Uint("commonMultiplier"),
		RareMultiplier:           v.Uint("rareMultiplier"),
		EpicMultiplier:           v.Uint("epicMultiplier"),
		LegendaryMultiplier:      v.Uint("legendaryMultiplier"),
		LongStakingBonus:         v.Uint("longStakingBonus"),
		MaxNftsPerUser:           uint8(v.Uint("maxNftsPerUser")),
		TimeMultiplierIncrement:  v.Uint("timeMultiplierIncrement"),
		TimeMultiplierPeriodDays: v.Uint("timeMultiplierPeriodDays"),
		MaxTimeMultiplier:        v.Uint("maxTimeMultiplier"),
	}, nil
}

func (p *PoolState) MarshalBinary() ([]byte, error) {
	v := NewValues().
		SetKey("admin", p.Admin).
		SetUint("rewardRate", p.RewardRate).
		SetUint("emergencyFeePercent", uint64(p.EmergencyFeePercent)).
		SetBool("paused", p.Paused).
		SetUint("totalStaked", p.TotalStaked).
		SetUint("commonMultiplier", p.CommonMultiplier).
		SetUint("rareMultiplier", p.RareMultiplier).
		SetUint("epicMultiplier", p.EpicMultiplier).
		SetUint("legendaryMultiplier", p.LegendaryMultiplier).
		SetUint("longStakingBonus", p.LongStakingBonus).
		SetUint("maxNftsPerUser", uint64(p.MaxNftsPerUser)).
		SetUint("timeMultiplierIncrement", p.TimeMultiplierIncrement).
		SetUint("timeMultiplierPeriodDays", p.TimeMultiplierPeriodDays).
		SetUint("maxTimeMultiplier", p.MaxTimeMultiplier)
	return PoolStateSchema.encode(v), nil
}
