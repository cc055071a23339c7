package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/luca-patrignani/aetherchain/pow"
	"github.com/luca-patrignani/aetherchain/signer"
)

// GenesisPreviousHash is stored as the previous hash of block 0.
const GenesisPreviousHash = "0"

// BlockState tracks a candidate block through mining.
type BlockState int

const (
	StateConstructed BlockState = iota
	StateMining
	StateSealed
)

func (s BlockState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateMining:
		return "mining"
	case StateSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// Block is a candidate ledger entry that has not been sealed yet.
type Block struct {
	Index           uint64
	Timestamp       time.Time
	Transactions    []Transaction
	PreviousHash    string
	AnnotationScore float64
	Nonce           uint64
	Hash            string

	state BlockState
}

// NewBlock builds a candidate with nonce 0 and its initial content hash.
func NewBlock(index uint64, timestamp time.Time, txs []Transaction, previousHash string, score float64) (*Block, error) {
	b := &Block{
		Index:           index,
		Timestamp:       timestamp.Round(0),
		Transactions:    txs,
		PreviousHash:    previousHash,
		AnnotationScore: score,
	}
	hash, err := b.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("failed to calculate block hash: %w", err)
	}
	b.Hash = hash
	return b, nil
}

// State reports where the block is in its lifecycle.
func (b *Block) State() BlockState { return b.state }

// ComputeHash hashes index, timestamp, transactions, previous hash, nonce and
// annotation score. It does not modify the block.
func (b *Block) ComputeHash() (string, error) {
	prefix, err := b.hashPrefix()
	if err != nil {
		return "", err
	}
	return contentHash(prefix, b.Nonce, b.AnnotationScore), nil
}

// SealMessage is the message signed when the block is sealed.
func (b *Block) SealMessage() string {
	return sealMessage(b.Index, b.Hash, b.AnnotationScore)
}

// hashPrefix is the nonce independent part of the hashed content.
func (b *Block) hashPrefix() (string, error) {
	txs, err := canonicalTransactions(b.Transactions)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(b.Index, 10) + "|" +
		strconv.FormatInt(b.Timestamp.UnixNano(), 10) + "|" +
		string(txs) + "|" +
		b.PreviousHash + "|", nil
}

func contentHash(prefix string, nonce uint64, score float64) string {
	return pow.Sum([]byte(prefix + strconv.FormatUint(nonce, 10) + "|" + formatScore(score)))
}

func sealMessage(index uint64, hash string, score float64) string {
	return strconv.FormatUint(index, 10) + ":" + hash + ":" + formatScore(score)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// Mine searches for a nonce whose hash meets difficulty, starting from the
// current nonce, then signs the seal message with s. On success the block
// holds the winning nonce and hash and is sealed; mining it again returns
// ErrAlreadySealed. When the budget runs out the block is left untouched and
// the error matches both ErrMiningTimeout and pow.ErrBudgetExhausted.
func (b *Block) Mine(ctx context.Context, difficulty uint, s signer.Signer, budget pow.Budget) (SealedBlock, pow.Result, error) {
	if b.state == StateSealed {
		return SealedBlock{}, pow.Result{}, ErrAlreadySealed
	}
	if s == nil {
		return SealedBlock{}, pow.Result{}, errors.New("mine: nil signer")
	}
	prefix, err := b.hashPrefix()
	if err != nil {
		return SealedBlock{}, pow.Result{}, err
	}

	b.state = StateMining
	score := b.AnnotationScore
	res, err := pow.Search(ctx, b.Nonce, difficulty, budget, func(nonce uint64) (string, error) {
		return contentHash(prefix, nonce, score), nil
	})
	if err != nil {
		b.state = StateConstructed
		if errors.Is(err, pow.ErrBudgetExhausted) {
			return SealedBlock{}, res, fmt.Errorf("%w: block %d: %w", ErrMiningTimeout, b.Index, err)
		}
		return SealedBlock{}, res, fmt.Errorf("mining block %d: %w", b.Index, err)
	}

	b.Nonce = res.Nonce
	b.Hash = res.Hash
	sig, err := s.Sign([]byte(b.SealMessage()))
	if err != nil {
		b.state = StateConstructed
		return SealedBlock{}, res, fmt.Errorf("sealing block %d: %w", b.Index, err)
	}
	txs, err := cloneTransactions(b.Transactions)
	if err != nil {
		b.state = StateConstructed
		return SealedBlock{}, res, err
	}
	b.state = StateSealed

	sealed := *b
	sealed.Transactions = txs
	return SealedBlock{block: sealed, signature: sig}, res, nil
}

// SealedBlock is a mined and signed block. It is immutable through its API.
type SealedBlock struct {
	block     Block
	signature signer.Signature
}

func (s SealedBlock) Index() uint64 { return s.block.Index }

func (s SealedBlock) Timestamp() time.Time { return s.block.Timestamp }

func (s SealedBlock) PreviousHash() string { return s.block.PreviousHash }

func (s SealedBlock) AnnotationScore() float64 { return s.block.AnnotationScore }

func (s SealedBlock) Nonce() uint64 { return s.block.Nonce }

func (s SealedBlock) Hash() string { return s.block.Hash }

func (s SealedBlock) Signature() signer.Signature { return s.signature }

// Transactions returns a deep copy of the block's transactions.
func (s SealedBlock) Transactions() []Transaction {
	txs, err := cloneTransactions(s.block.Transactions)
	if err != nil {
		// Sealed transactions were encoded when the block was hashed.
		panic(fmt.Errorf("%w: %v", ErrInvalidChainState, err))
	}
	return txs
}

// ComputeHash recomputes the content hash from the stored fields.
func (s SealedBlock) ComputeHash() (string, error) { return s.block.ComputeHash() }

func (s SealedBlock) SealMessage() string { return s.block.SealMessage() }

// View returns a detached snapshot of the block.
func (s SealedBlock) View() BlockView {
	return BlockView{
		Index:           s.block.Index,
		Timestamp:       s.block.Timestamp,
		Transactions:    s.Transactions(),
		PreviousHash:    s.block.PreviousHash,
		AnnotationScore: s.block.AnnotationScore,
		Nonce:           s.block.Nonce,
		Hash:            s.block.Hash,
		Signature:       s.signature,
	}
}

// BlockView is a read-only copy of a sealed block, suitable for printing and
// export. It carries every hashed field so the hash can be recomputed.
type BlockView struct {
	Index           uint64           `json:"index"`
	Timestamp       time.Time        `json:"timestamp"`
	Transactions    []Transaction    `json:"transactions"`
	PreviousHash    string           `json:"previous_hash"`
	AnnotationScore float64          `json:"annotation_score"`
	Nonce           uint64           `json:"nonce"`
	Hash            string           `json:"hash"`
	Signature       signer.Signature `json:"signature"`
}

func (v BlockView) sealed() SealedBlock {
	return SealedBlock{
		block: Block{
			Index:           v.Index,
			Timestamp:       v.Timestamp,
			Transactions:    v.Transactions,
			PreviousHash:    v.PreviousHash,
			AnnotationScore: v.AnnotationScore,
			Nonce:           v.Nonce,
			Hash:            v.Hash,
			state:           StateSealed,
		},
		signature: v.Signature,
	}
}
