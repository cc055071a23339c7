package pow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrBudgetExhausted is returned when a search runs out of attempts or time
// before finding a qualifying nonce.
var ErrBudgetExhausted = errors.New("mining budget exhausted")

// errFound stops the remaining workers once a nonce has been committed.
var errFound = errors.New("nonce found")

// HashFunc recomputes the content hash of a candidate for the given nonce.
// It must be safe for concurrent use when Budget.Workers > 1.
type HashFunc func(nonce uint64) (string, error)

// Budget bounds a nonce search. The zero value is unbounded and single threaded.
type Budget struct {
	MaxAttempts uint64        // 0 means no limit
	Timeout     time.Duration // 0 means no wall-clock limit
	Workers     int           // values below 1 are treated as 1
}

// Result describes the committed outcome of a search.
type Result struct {
	Nonce    uint64
	Hash     string
	Attempts uint64
	Elapsed  time.Duration
}

type search struct {
	difficulty  uint
	maxAttempts uint64
	hash        HashFunc

	attempts atomic.Uint64

	mu     sync.Mutex
	found  bool
	result Result
}

// Search looks for the first nonce, starting at start, whose hash meets
// difficulty. With one worker the nonces are tried strictly in order. With n
// workers, worker w tries start+w, start+w+n, ... and the first hit is
// committed exactly once; the returned pair is always reproducible by calling
// fn with the returned nonce.
func Search(ctx context.Context, start uint64, difficulty uint, budget Budget, fn HashFunc) (Result, error) {
	if fn == nil {
		return Result{}, errors.New("pow: nil hash function")
	}
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, budget.Timeout, ErrBudgetExhausted)
		defer cancel()
	}
	workers := max(budget.Workers, 1)

	s := &search{
		difficulty:  difficulty,
		maxAttempts: budget.MaxAttempts,
		hash:        fn,
	}

	began := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			return s.run(gctx, start+uint64(w), uint64(workers))
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.found {
		s.result.Attempts = s.attemptCount()
		s.result.Elapsed = time.Since(began)
		return s.result, nil
	}

	res := Result{Attempts: s.attemptCount(), Elapsed: time.Since(began)}
	if errors.Is(err, ErrBudgetExhausted) {
		return res, fmt.Errorf("%w: no hash with prefix %q after %d attempts in %s",
			ErrBudgetExhausted, Target(difficulty), res.Attempts, res.Elapsed.Round(time.Millisecond))
	}
	return res, err
}

func (s *search) run(ctx context.Context, nonce, stride uint64) error {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return context.Cause(ctx)
		default:
		}

		if n := s.attempts.Add(1); s.maxAttempts > 0 && n > s.maxAttempts {
			return ErrBudgetExhausted
		}

		hash, err := s.hash(nonce)
		if err != nil {
			return fmt.Errorf("hash nonce %d: %w", nonce, err)
		}
		if MeetsDifficulty(hash, s.difficulty) {
			s.commit(nonce, hash)
			return errFound
		}
		nonce += stride
	}
}

func (s *search) commit(nonce uint64, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.found {
		return
	}
	s.found = true
	s.result = Result{Nonce: nonce, Hash: hash}
}

func (s *search) attemptCount() uint64 {
	n := s.attempts.Load()
	if s.maxAttempts > 0 && n > s.maxAttempts {
		return s.maxAttempts
	}
	return n
}
