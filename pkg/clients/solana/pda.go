package solana

import (
	solanago "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	StakeSeed       = []byte("stake")
	UserStakingSeed = []byte("user_staking")
	PoolStateSeed   = []byte("pool_state")
)

func StakePDA(programId, mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress([][]byte{StakeSeed, mint[:]}, programId)
	if err != nil {
		return solanago.PublicKey{}, errors.Wrapf(err, "failed to derive stake address for mint %s", mint)
	}
	return addr, nil
}

func UserStakingPDA(programId, wallet solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress([][]byte{UserStakingSeed, wallet[:]}, programId)
	if err != nil {
		return solanago.PublicKey{}, errors.Wrapf(err, "failed to derive user staking address for wallet %s", wallet)
	}
	return addr, nil
}

func PoolStatePDA(programId solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress([][]byte{PoolStateSeed}, programId)
	if err != nil {
		return solanago.PublicKey{}, errors.Wrap(err, "failed to derive pool state address")
	}
	return addr, nil
}
