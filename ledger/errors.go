package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChainState signals a broken construction invariant, such as
	// submitting to a chain without genesis. It is raised with panic.
	ErrInvalidChainState = errors.New("invalid chain state")
	// ErrMiningTimeout is returned when mining exhausts its attempt or time
	// budget. The chain is left unchanged.
	ErrMiningTimeout      = errors.New("mining timeout")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
	ErrInvalidScore       = errors.New("invalid annotation score")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrAlreadySealed      = errors.New("block already sealed")
	ErrEmptyChain         = errors.New("blockchain is empty")
	ErrIndexOutOfRange    = errors.New("index out of range")
	// ErrIntegrityViolation matches every *IntegrityError.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// IntegrityError reports the first block that failed verification.
type IntegrityError struct {
	Index  int
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("block %d invalid: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("block %d invalid: %s", e.Index, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrityViolation }
