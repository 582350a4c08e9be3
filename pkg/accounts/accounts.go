package accounts

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindStake       Kind = "StakeInfo"
	KindUserStaking Kind = "UserStakingInfo"
	KindPoolState   Kind = "PoolState"
)

// ErrNotThisType is returned for any buffer that is too short or carries a foreign discriminator.
// Callers treat it as "account absent", never as a failure.
var ErrNotThisType = errors.New("account data is not of the requested kind")

type DecodeError struct {
	Kind   Kind
	Reason string
}

func newDecodeError(kind Kind, reason string) *DecodeError {
	return &DecodeError{Kind: kind, Reason: reason}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrNotThisType
}

// IsNotThisType reports whether err means the buffer did not hold the expected account.
func IsNotThisType(err error) bool {
	return errors.Is(err, ErrNotThisType)
}

var StakeSchema = &Schema{
	Kind:          KindStake,
	Discriminator: [DiscriminatorSize]byte{91, 4, 83, 117, 169, 120, 168, 119},
	Fields: []Field{
		{Name: "isInitialized", Encoding: U8},
		{Name: "nftMint", Encoding: Pubkey},
		{Name: "owner", Encoding: Pubkey},
		{Name: "stakedAt", Encoding: I64},
		{Name: "lastUpdateTime", Encoding: I64},
		{Name: "releaseTime", Encoding: I64},
		{Name: "rewardRatePerDay", Encoding: U64},
		{Name: "accumulatedReward", Encoding: U64},
		{Name: "tierMultiplier", Encoding: U8},
		{Name: "isUnstaked", Encoding: U8},
	},
}

var UserStakingSchema = &Schema{
	Kind:          KindUserStaking,
	Discriminator: [DiscriminatorSize]byte{171, 19, 114, 117, 157, 103, 21, 106},
	Fields: []Field{
		{Name: "isInitialized", Encoding: U8},
		{Name: "owner", Encoding: Pubkey},
		{Name: "stakedCount", Encoding: U32},
		{Name: "stakedMints", Encoding: PubkeyVec},
		{Name: "collectionBonus", Encoding: U16},
		{Name: "padding0", Encoding: U8},
		{Name: "padding1", Encoding: U8},
		{Name: "lastUpdated", Encoding: I64},
	},
}

var PoolStateSchema = &Schema{
	Kind:          KindPoolState,
	Discriminator: [DiscriminatorSize]byte{4, 146, 216, 218, 165, 66, 244, 30},
	Fields: []Field{
		{Name: "admin", Encoding: Pubkey},
		{Name: "rewardRate", Encoding: U64},
		{Name: "emergencyFeePercent", Encoding: U8},
		{Name: "paused", Encoding: U8},
		{Name: "totalStaked", Encoding: U64},
		{Name: "commonMultiplier", Encoding: U64},
		{Name: "rareMultiplier", Encoding: U64},
		{Name: "epicMultiplier", Encoding: U64},
		{Name: "legendaryMultiplier", Encoding: U64},
		{Name: "longStakingBonus", Encoding: U64},
		{Name: "maxNftsPerUser", Encoding: U8},
		{Name: "timeMultiplierIncrement", Encoding: U64},
		{Name: "timeMultiplierPeriodDays", Encoding: U64},
		{Name: "maxTimeMultiplier", Encoding: U64},
	},
}

var schemas = map[Kind]*Schema{
	KindStake:       StakeSchema,
	KindUserStaking: UserStakingSchema,
	KindPoolState:   PoolStateSchema,
}

func SchemaFor(kind Kind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown account kind %q", kind)
	}
	return s, nil
}

// Decode decodes data as the given kind. A wrong kind or short buffer yields an error matching ErrNotThisType.
func Decode(data []byte, kind Kind) (*Values, error) {
	s, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

// Encode serializes values with the schema of kind.
func Encode(kind Kind, values *Values) ([]byte, error) {
	s, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	return s.encode(values), nil
}
