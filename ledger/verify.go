package ledger

import (
	"fmt"

	"github.com/luca-patrignani/aetherchain/pow"
	"github.com/luca-patrignani/aetherchain/signer"
)

// VerifyViews validates an exported snapshot with the rules of Chain.Verify.
// The signer must be the one that sealed the blocks.
func VerifyViews(views []BlockView, difficulty uint, s signer.Signer) error {
	blocks := make([]SealedBlock, len(views))
	for i, v := range views {
		blocks[i] = v.sealed()
	}
	return verifyBlocks(blocks, difficulty, s)
}

func verifyBlocks(blocks []SealedBlock, difficulty uint, s signer.Signer) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}
	for i := range blocks {
		var previous *SealedBlock
		if i > 0 {
			previous = &blocks[i-1]
		}
		if err := validateBlock(i, blocks[i], previous, difficulty, s); err != nil {
			return err
		}
	}
	return nil
}

// validateBlock checks a block against its predecessor, nil for genesis.
func validateBlock(i int, current SealedBlock, previous *SealedBlock, difficulty uint, s signer.Signer) error {
	if current.Index() != uint64(i) {
		return &IntegrityError{Index: i, Reason: fmt.Sprintf("invalid index: expected %d, got %d", i, current.Index())}
	}

	expectedPrev := GenesisPreviousHash
	if previous != nil {
		expectedPrev = previous.Hash()
	}
	if current.PreviousHash() != expectedPrev {
		return &IntegrityError{Index: i, Reason: fmt.Sprintf("invalid prev hash: expected %s, got %s", expectedPrev, current.PreviousHash())}
	}

	expectedHash, err := current.ComputeHash()
	if err != nil {
		return &IntegrityError{Index: i, Reason: "failed to calculate hash", Err: err}
	}
	if current.Hash() != expectedHash {
		return &IntegrityError{Index: i, Reason: fmt.Sprintf("invalid hash: expected %s, got %s", expectedHash, current.Hash())}
	}

	if !pow.MeetsDifficulty(current.Hash(), difficulty) {
		return &IntegrityError{Index: i, Reason: fmt.Sprintf("hash %s does not meet difficulty %d", current.Hash(), difficulty)}
	}

	if s == nil || !s.Verify([]byte(current.SealMessage()), current.Signature()) {
		return &IntegrityError{Index: i, Reason: "invalid signature"}
	}

	return nil
}
