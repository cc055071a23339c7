package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/aetherchain/metrics"
	"github.com/luca-patrignani/aetherchain/signer"
)

func newTestChain(t *testing.T, difficulty uint, opts ...Option) *Chain {
	t.Helper()
	c, err := NewChain(context.Background(), difficulty, opts...)
	if err != nil {
		t.Fatalf("failed to create chain: %v", err)
	}
	return c
}

func aliceToBob() Transaction {
	return Transaction{"from": "alice", "to": "bob", "amount": 10}
}

// TestNewChainCreatesGenesis verifies that a new chain holds exactly one
// mined and sealed genesis block linked to "0".
func TestNewChainCreatesGenesis(t *testing.T) {
	c := newTestChain(t, 2)

	if c.Len() != 1 {
		t.Fatalf("expected 1 block (genesis), got %d", c.Len())
	}
	genesis, err := c.Block(0)
	if err != nil {
		t.Fatalf("Block(0) failed: %v", err)
	}
	if genesis.Index != 0 {
		t.Fatalf("genesis index should be 0, got %d", genesis.Index)
	}
	if genesis.PreviousHash != "0" {
		t.Fatalf("genesis PreviousHash should be '0', got %s", genesis.PreviousHash)
	}
	if !strings.HasPrefix(genesis.Hash, "00") {
		t.Fatalf("genesis hash %s does not meet difficulty 2", genesis.Hash)
	}
	if genesis.Signature == "" {
		t.Fatal("genesis block should be signed")
	}
	if genesis.AnnotationScore != DefaultAnnotationScore {
		t.Fatalf("genesis score should be %v, got %v", DefaultAnnotationScore, genesis.AnnotationScore)
	}
	if len(genesis.Transactions) != 1 || genesis.Transactions[0]["from"] != "genesis" || genesis.Transactions[0]["to"] != "creator" {
		t.Fatalf("unexpected genesis transactions: %v", genesis.Transactions)
	}
	if c.ID() == "" {
		t.Fatal("chain should have an id")
	}
	if !c.IsValid() {
		t.Fatalf("fresh chain should be valid: %v", c.Verify())
	}
}

// TestNewChainRejectsDifficulty verifies the difficulty bounds.
func TestNewChainRejectsDifficulty(t *testing.T) {
	for _, d := range []uint{0, 65} {
		if _, err := NewChain(context.Background(), d); !errors.Is(err, ErrInvalidDifficulty) {
			t.Fatalf("difficulty %d: expected ErrInvalidDifficulty, got %v", d, err)
		}
	}
}

// TestNewChainGenesisMiningBudget verifies that a genesis block that cannot be
// mined within budget is reported as ErrMiningTimeout.
func TestNewChainGenesisMiningBudget(t *testing.T) {
	_, err := NewChain(context.Background(), 64, WithMiningBudget(10))
	if !errors.Is(err, ErrMiningTimeout) {
		t.Fatalf("expected ErrMiningTimeout, got %v", err)
	}
}

// TestScenarioDifficultyTwo runs the reference scenario: one transfer is
// appended and linked, and editing its amount without re-mining breaks the chain.
func TestScenarioDifficultyTwo(t *testing.T) {
	c := newTestChain(t, 2)

	if err := c.SubmitTransaction(context.Background(), aliceToBob()); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	blocks := c.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[1].PreviousHash != blocks[0].Hash {
		t.Fatalf("block 1 prev hash %s does not link to genesis %s", blocks[1].PreviousHash, blocks[0].Hash)
	}
	if !strings.HasPrefix(blocks[1].Hash, "00") {
		t.Fatalf("block 1 hash %s does not start with 00", blocks[1].Hash)
	}
	if !c.IsValid() {
		t.Fatalf("chain should be valid: %v", c.Verify())
	}

	c.blocks[1].block.Transactions[0]["amount"] = 999

	if c.IsValid() {
		t.Fatal("tampered chain should be invalid")
	}
	idx, found := c.FirstInvalid()
	if !found || idx != 1 {
		t.Fatalf("expected block 1 to fail, got %d (found=%v)", idx, found)
	}
	var ie *IntegrityError
	if err := c.Verify(); !errors.As(err, &ie) || !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected *IntegrityError, got %v", err)
	}
	if !strings.Contains(ie.Reason, "invalid hash") {
		t.Fatalf("expected a hash mismatch, got %q", ie.Reason)
	}
}

// TestSubmitCopiesTransaction verifies that the caller cannot change a
// submitted transaction afterwards.
func TestSubmitCopiesTransaction(t *testing.T) {
	c := newTestChain(t, 1)
	tx := aliceToBob()
	if err := c.SubmitTransaction(context.Background(), tx); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	tx["amount"] = 999
	views := c.Blocks()
	views[1].Transactions[0]["amount"] = 1000

	if !c.IsValid() {
		t.Fatalf("chain changed through a caller reference: %v", c.Verify())
	}
}

// TestChainLinkage appends several blocks and checks the linkage invariant.
func TestChainLinkage(t *testing.T) {
	c := newTestChain(t, 1)
	for i := 0; i < 5; i++ {
		if err := c.SubmitTransaction(context.Background(), Transaction{"seq": i}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	blocks := c.Blocks()
	if len(blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(blocks))
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Index != uint64(i) {
			t.Fatalf("block %d has index %d", i, blocks[i].Index)
		}
		if blocks[i].PreviousHash != blocks[i-1].Hash {
			t.Fatalf("block %d is not linked to block %d", i, i-1)
		}
	}
	latest, err := c.Latest()
	if err != nil || latest.Hash != blocks[5].Hash {
		t.Fatalf("Latest returned %v, %v", latest.Hash, err)
	}
	if _, err := c.Block(6); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := c.Block(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

// TestTamperDetection covers each class of tampering on a non-genesis block.
func TestTamperDetection(t *testing.T) {
	cases := map[string]struct {
		tamper func(c *Chain)
		reason string
	}{
		"transaction": {func(c *Chain) { c.blocks[2].block.Transactions[0]["amount"] = 1 }, "invalid hash"},
		"nonce":       {func(c *Chain) { c.blocks[2].block.Nonce++ }, "invalid hash"},
		"timestamp":   {func(c *Chain) { c.blocks[2].block.Timestamp = c.blocks[2].block.Timestamp.Add(time.Second) }, "invalid hash"},
		"prev hash":   {func(c *Chain) { c.blocks[2].block.PreviousHash = c.blocks[0].block.Hash }, "invalid prev hash"},
		"index":       {func(c *Chain) { c.blocks[2].block.Index = 7 }, "invalid index"},
		"signature":   {func(c *Chain) { c.blocks[2].signature = c.blocks[1].signature }, "invalid signature"},
		"reorder": {func(c *Chain) {
			c.blocks[1], c.blocks[2] = c.blocks[2], c.blocks[1]
		}, "invalid index"},
		"score and rehash": {func(c *Chain) {
			b := &c.blocks[2].block
			b.AnnotationScore = 0.99
			b.Hash, _ = b.ComputeHash()
		}, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestChain(t, 1)
			for i := 0; i < 3; i++ {
				if err := c.SubmitTransaction(context.Background(), Transaction{"amount": i + 1}); err != nil {
					t.Fatalf("submit failed: %v", err)
				}
			}
			tc.tamper(c)

			err := c.Verify()
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				t.Fatalf("expected an integrity error, got %v", err)
			}
			if ie.Index > 3 || ie.Index < 1 {
				t.Fatalf("unexpected failing index %d", ie.Index)
			}
			if tc.reason != "" && !strings.Contains(ie.Reason, tc.reason) {
				t.Fatalf("expected reason %q, got %q", tc.reason, ie.Reason)
			}
		})
	}
}

// TestGenesisTamperDetected verifies that genesis is checked like other blocks.
func TestGenesisTamperDetected(t *testing.T) {
	c := newTestChain(t, 1)
	c.blocks[0].block.Transactions[0]["amount"] = 1_000_000

	idx, found := c.FirstInvalid()
	if !found || idx != 0 {
		t.Fatalf("expected genesis to fail, got %d (found=%v)", idx, found)
	}
}

// TestCrossChainSignatureRejected verifies that a chain does not accept seals
// made by another chain's signer.
func TestCrossChainSignatureRejected(t *testing.T) {
	a := newTestChain(t, 1)
	b := newTestChain(t, 1)

	if err := VerifyViews(a.Blocks(), 1, b.Signer()); err == nil {
		t.Fatal("chain a should not verify with chain b's signer")
	}
	if err := VerifyViews(a.Blocks(), 1, a.Signer()); err != nil {
		t.Fatalf("chain a should verify with its own signer: %v", err)
	}
}

// TestVerifyViewsDetectsTamperedExport verifies validation of an exported
// snapshot, including after a JSON round trip.
func TestVerifyViewsDetectsTamperedExport(t *testing.T) {
	c := newTestChain(t, 2)
	if err := c.SubmitTransaction(context.Background(), aliceToBob()); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}

	raw, err := json.Marshal(c.Blocks())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var views []BlockView
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := VerifyViews(views, c.Difficulty(), c.Signer()); err != nil {
		t.Fatalf("exported chain should verify: %v", err)
	}

	views[1].Transactions[0]["amount"] = 999
	if err := VerifyViews(views, c.Difficulty(), c.Signer()); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
	if err := VerifyViews(nil, 1, c.Signer()); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
}

// TestVerifyViewsPreservesLargeIntegers verifies that integers beyond float64
// precision survive a JSON export and still verify.
func TestVerifyViewsPreservesLargeIntegers(t *testing.T) {
	c := newTestChain(t, 1)
	if err := c.SubmitTransaction(context.Background(), Transaction{"amount": int64(9007199254740993)}); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	if !c.IsValid() {
		t.Fatalf("chain should be valid: %v", c.Verify())
	}

	raw, err := json.Marshal(c.Blocks())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var views []BlockView
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := views[1].Transactions[0]["amount"]; got != json.Number("9007199254740993") {
		t.Fatalf("amount changed in the round trip: %v", got)
	}
	if err := VerifyViews(views, c.Difficulty(), c.Signer()); err != nil {
		t.Fatalf("exported chain should verify: %v", err)
	}
}

// TestTamperWithInvalidUTF8Detected verifies that swapping one invalid byte
// for another in a sealed block is reported.
func TestTamperWithInvalidUTF8Detected(t *testing.T) {
	c := newTestChain(t, 1)
	if err := c.SubmitTransaction(context.Background(), Transaction{"memo": "ok"}); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	c.blocks[1].block.Transactions[0]["memo"] = "\xfe"

	idx, found := c.FirstInvalid()
	if !found || idx != 1 {
		t.Fatalf("expected block 1 to fail, got %d (found=%v)", idx, found)
	}
}

// TestGenesisDependsOnTimestampOnly verifies that two chains built at the same
// instant share the genesis hash and differ once the clock differs.
func TestGenesisDependsOnTimestampOnly(t *testing.T) {
	at := func(ts time.Time) Option { return WithClock(func() time.Time { return ts }) }
	t0 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	a := newTestChain(t, 2, at(t0))
	b := newTestChain(t, 2, at(t0))
	c := newTestChain(t, 2, at(t0.Add(time.Nanosecond)))

	ga, _ := a.Block(0)
	gb, _ := b.Block(0)
	gc, _ := c.Block(0)
	if ga.Hash != gb.Hash || ga.Nonce != gb.Nonce {
		t.Fatalf("same timestamp should give the same genesis: %s vs %s", ga.Hash, gb.Hash)
	}
	if ga.Signature == gb.Signature {
		t.Fatal("independent signers should produce different seals")
	}
	if ga.Hash == gc.Hash {
		t.Fatal("different timestamps should give different genesis hashes")
	}
}

// TestSubmitScoredTransaction verifies score validation and that the score is
// bound into the seal.
func TestSubmitScoredTransaction(t *testing.T) {
	c := newTestChain(t, 1)
	for _, bad := range []float64{-0.1, 1.5, math.NaN(), math.Inf(1)} {
		if err := c.SubmitScoredTransaction(context.Background(), aliceToBob(), bad); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("score %v: expected ErrInvalidScore, got %v", bad, err)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("rejected submissions must not extend the chain, got %d blocks", c.Len())
	}

	if err := c.SubmitScoredTransaction(context.Background(), aliceToBob(), 0.87); err != nil {
		t.Fatalf("SubmitScoredTransaction failed: %v", err)
	}
	latest, _ := c.Latest()
	if latest.AnnotationScore != 0.87 {
		t.Fatalf("expected score 0.87, got %v", latest.AnnotationScore)
	}
	if !c.Signer().Verify([]byte("1:"+latest.Hash+":0.87"), latest.Signature) {
		t.Fatal("seal should cover the score")
	}
}

// TestSubmitRejectsUnencodableTransaction verifies payload validation.
func TestSubmitRejectsUnencodableTransaction(t *testing.T) {
	c := newTestChain(t, 1)
	err := c.SubmitTransaction(context.Background(), Transaction{"fn": func() {}})
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
	if _, err := NewChain(context.Background(), 1, WithGenesisTransaction(Transaction{"c": make(chan int)})); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for genesis, got %v", err)
	}
}

// TestSubmitMiningTimeoutLeavesChainUnchanged verifies that a failed mining
// run does not append anything.
func TestSubmitMiningTimeoutLeavesChainUnchanged(t *testing.T) {
	c := newTestChain(t, 1)
	c.difficulty = 64
	c.budget.MaxAttempts = 100

	err := c.SubmitTransaction(context.Background(), aliceToBob())
	if !errors.Is(err, ErrMiningTimeout) {
		t.Fatalf("expected ErrMiningTimeout, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected the chain to keep 1 block, got %d", c.Len())
	}
}

// TestSubmitCancelled verifies that a cancelled context aborts mining.
func TestSubmitCancelled(t *testing.T) {
	c := newTestChain(t, 1)
	c.difficulty = 64

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.SubmitTransaction(ctx, aliceToBob())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrMiningTimeout) {
		t.Fatal("cancellation is not a mining timeout")
	}
}

// TestSubmitWithoutGenesisPanics verifies the construction invariant.
func TestSubmitWithoutGenesisPanics(t *testing.T) {
	c := newTestChain(t, 1)
	c.blocks = nil

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvalidChainState) {
			t.Fatalf("expected ErrInvalidChainState panic, got %v", r)
		}
	}()
	_ = c.SubmitTransaction(context.Background(), aliceToBob())
}

// TestEdDSAChain verifies a chain sealed with the asymmetric scheme, whose
// seals can be checked with the public key alone.
func TestEdDSAChain(t *testing.T) {
	c := newTestChain(t, 1, WithScheme(signer.SchemeEdDSA), WithWorkers(2))
	if err := c.SubmitTransaction(context.Background(), aliceToBob()); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	if !c.IsValid() {
		t.Fatalf("eddsa chain should be valid: %v", c.Verify())
	}
	for _, b := range c.Blocks() {
		msg := []byte(fmt.Sprintf("%d:%s:%s", b.Index, b.Hash, formatScore(b.AnnotationScore)))
		if err := signer.VerifyEdDSA(c.Signer().PublicKey(), msg, b.Signature); err != nil {
			t.Fatalf("block %d: %v", b.Index, err)
		}
	}
}

// TestConcurrentSubmitAndRead exercises the chain lock with concurrent writers
// and readers.
func TestConcurrentSubmitAndRead(t *testing.T) {
	c := newTestChain(t, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.SubmitTransaction(context.Background(), Transaction{"worker": i})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Blocks()
			_ = c.IsValid()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent submit failed: %v", err)
		}
	}
	if c.Len() != 9 {
		t.Fatalf("expected 9 blocks, got %d", c.Len())
	}
	if !c.IsValid() {
		t.Fatalf("chain should be valid: %v", c.Verify())
	}
}

// TestChainMetrics verifies that mining and validation are recorded.
func TestChainMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestChain(t, 1, WithMetrics(metrics.New(reg)))
	if err := c.SubmitTransaction(context.Background(), aliceToBob()); err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	c.IsValid()

	samples, err := metrics.Snapshot(reg)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	got := map[string]float64{}
	for _, s := range samples {
		got[s.Name] += s.Value
	}
	if got["aetherchain_ledger_blocks_sealed_total"] != 2 {
		t.Fatalf("expected 2 sealed blocks, got %v", got["aetherchain_ledger_blocks_sealed_total"])
	}
	if got["aetherchain_ledger_hash_attempts_total"] < 2 {
		t.Fatalf("expected at least 2 hash attempts, got %v", got["aetherchain_ledger_hash_attempts_total"])
	}
	if got["aetherchain_ledger_validations_total"] != 1 {
		t.Fatalf("expected 1 validation, got %v", got["aetherchain_ledger_validations_total"])
	}
}
