package solana

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrChainUnavailable matches every RPC failure surfaced by the client.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrPoolStateMissing means the configured program has no pool account, which is a deployment error.
	ErrPoolStateMissing = errors.New("pool state account not found")
)

type ChainUnavailableError struct {
	Method string
	Err    error
}

func (e *ChainUnavailableError) Error() string {
	return fmt.Sprintf("chain unavailable: %s: %v", e.Method, e.Err)
}

func (e *ChainUnavailableError) Unwrap() error {
	return e.Err
}

func (e *ChainUnavailableError) Is(target error) bool {
	return target == ErrChainUnavailable
}

func unavailable(method string, err error) error {
	return &ChainUnavailableError{Method: method, Err: err}
}
