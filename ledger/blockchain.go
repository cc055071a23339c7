package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luca-patrignani/aetherchain/metrics"
	"github.com/luca-patrignani/aetherchain/pow"
	"github.com/luca-patrignani/aetherchain/signer"
)

// Chain is an append-only sequence of sealed blocks. All blocks are mined at
// the same difficulty and sealed by the same signer.
type Chain struct {
	mu     sync.RWMutex
	blocks []SealedBlock

	id           string
	difficulty   uint
	signer       signer.Signer
	budget       pow.Budget
	defaultScore float64
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewChain creates a chain and mines its genesis block.
//
// The genesis block:
//   - Has index 0 and previous hash "0"
//   - Holds the genesis transaction (DefaultGenesisTransaction unless overridden)
//   - Is mined and sealed like every other block
//
// Difficulty must be between 1 and the length of a hex digest.
func NewChain(ctx context.Context, difficulty uint, opts ...Option) (*Chain, error) {
	if difficulty == 0 || difficulty > pow.HashLength {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidDifficulty, difficulty, pow.HashLength)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	if !validScore(cfg.defaultScore) {
		return nil, fmt.Errorf("%w: default score %v", ErrInvalidScore, cfg.defaultScore)
	}

	s := cfg.signer
	if s == nil {
		var err error
		s, err = signer.New(cfg.scheme)
		if err != nil {
			return nil, fmt.Errorf("failed to create signer: %w", err)
		}
	}

	c := &Chain{
		id:           uuid.NewString(),
		difficulty:   difficulty,
		signer:       s,
		budget:       cfg.budget,
		defaultScore: cfg.defaultScore,
		now:          cfg.now,
		metrics:      cfg.metrics,
	}
	c.logger = cfg.logger.With("chain", c.id)

	seed, err := cfg.genesisTx.Clone()
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	genesis, err := NewBlock(0, c.now(), []Transaction{seed}, GenesisPreviousHash, c.defaultScore)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	sealed, err := c.mine(ctx, genesis)
	if err != nil {
		return nil, fmt.Errorf("failed to mine genesis block: %w", err)
	}
	c.blocks = append(c.blocks, sealed)
	c.logger.Info("genesis block created",
		"difficulty", difficulty,
		"scheme", string(s.Scheme()),
		"hash", sealed.Hash())

	return c, nil
}

// SubmitTransaction appends a block holding tx with the default annotation
// score. See SubmitScoredTransaction.
func (c *Chain) SubmitTransaction(ctx context.Context, tx Transaction) error {
	return c.SubmitScoredTransaction(ctx, tx, c.defaultScore)
}

// SubmitScoredTransaction mines a block holding tx alone and appends it.
//
// The new block has index len(chain) and links to the latest hash. The
// transaction is copied, so later changes to tx do not reach the chain. If
// mining fails the chain is unchanged; budget exhaustion is reported as
// ErrMiningTimeout.
//
// Thread-safety: submissions are serialized; readers wait while a block is
// being mined.
func (c *Chain) SubmitScoredTransaction(ctx context.Context, tx Transaction, score float64) error {
	if !validScore(score) {
		return fmt.Errorf("%w: %v (want a finite value in [0,1])", ErrInvalidScore, score)
	}
	record, err := tx.Clone()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		panic(fmt.Errorf("%w: submit on a chain without genesis", ErrInvalidChainState))
	}
	latest := c.blocks[len(c.blocks)-1]

	block, err := NewBlock(uint64(len(c.blocks)), c.now(), []Transaction{record}, latest.Hash(), score)
	if err != nil {
		return err
	}
	sealed, err := c.mine(ctx, block)
	if err != nil {
		return fmt.Errorf("block %d not appended: %w", block.Index, err)
	}
	c.blocks = append(c.blocks, sealed)
	c.logger.Info("transaction added", "index", sealed.Index(), "hash", sealed.Hash())

	return nil
}

func (c *Chain) mine(ctx context.Context, b *Block) (SealedBlock, error) {
	sealed, res, err := b.Mine(ctx, c.difficulty, c.signer, c.budget)
	c.metrics.ObserveMining(res.Attempts, res.Elapsed, err == nil)
	if err != nil {
		c.logger.Warn("mining failed",
			"index", b.Index,
			"attempts", res.Attempts,
			"elapsed", res.Elapsed,
			"error", err)
		return SealedBlock{}, err
	}
	c.logger.Debug("block mined",
		"index", sealed.Index(),
		"hash", sealed.Hash(),
		"nonce", sealed.Nonce(),
		"score", sealed.AnnotationScore(),
		"attempts", res.Attempts,
		"elapsed", res.Elapsed)
	return sealed, nil
}

func validScore(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= 1
}

// Verify validates every block of the chain.
//
// Verification checks, for each block:
//   - Index continuity
//   - Previous hash linkage ("0" for genesis)
//   - Stored hash equals the recomputed content hash
//   - Hash meets the chain difficulty
//   - Signature over the seal message verifies with the chain signer
//
// It returns nil for a valid chain or an *IntegrityError for the first
// failing block.
//
// Thread-safety: This method is safe for concurrent access.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err := verifyBlocks(c.blocks, c.difficulty, c.signer)
	c.metrics.ObserveValidation(err == nil)
	if err != nil {
		c.logger.Warn("chain integrity violation", "error", err)
	}
	return err
}

// IsValid reports whether Verify finds no violation.
func (c *Chain) IsValid() bool {
	return c.Verify() == nil
}

// FirstInvalid returns the index of the first block failing verification.
func (c *Chain) FirstInvalid() (int, bool) {
	err := c.Verify()
	if err == nil {
		return -1, false
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie.Index, true
	}
	return 0, true
}

// Blocks returns a snapshot of the chain, genesis first.
func (c *Chain) Blocks() []BlockView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]BlockView, len(c.blocks))
	for i, b := range c.blocks {
		views[i] = b.View()
	}
	return views
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Latest returns the most recently appended block.
func (c *Chain) Latest() (BlockView, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.blocks) == 0 {
		return BlockView{}, ErrEmptyChain
	}
	return c.blocks[len(c.blocks)-1].View(), nil
}

// Block returns the block at index.
func (c *Chain) Block(index int) (BlockView, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index < 0 || index >= len(c.blocks) {
		return BlockView{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return c.blocks[index].View(), nil
}

func (c *Chain) Difficulty() uint { return c.difficulty }

// ID identifies the chain in logs.
func (c *Chain) ID() string { return c.id }

func (c *Chain) Signer() signer.Signer { return c.signer }
