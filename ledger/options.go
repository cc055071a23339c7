package ledger

import (
	"io"
	"log/slog"
	"time"

	"github.com/luca-patrignani/aetherchain/metrics"
	"github.com/luca-patrignani/aetherchain/pow"
	"github.com/luca-patrignani/aetherchain/signer"
)

// DefaultAnnotationScore is attached to blocks submitted without a score.
const DefaultAnnotationScore = 0.05

// DefaultGenesisTransaction is the seed transaction of block 0.
func DefaultGenesisTransaction() Transaction {
	return Transaction{"from": "genesis", "to": "creator", "amount": 100}
}

type config struct {
	signer       signer.Signer
	scheme       signer.Scheme
	budget       pow.Budget
	defaultScore float64
	genesisTx    Transaction
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Chain.
type Option func(config) config

func defaultConfig() config {
	return config{
		scheme:       signer.SchemeHashChain,
		defaultScore: DefaultAnnotationScore,
		genesisTx:    DefaultGenesisTransaction(),
		now:          time.Now,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSigner seals every block with s instead of a freshly generated signer.
func WithSigner(s signer.Signer) Option {
	return func(c config) config {
		c.signer = s
		return c
	}
}

// WithScheme selects the scheme of the generated signer. It is ignored when
// WithSigner is also given.
func WithScheme(scheme signer.Scheme) Option {
	return func(c config) config {
		c.scheme = scheme
		return c
	}
}

// WithMiningBudget caps the number of hashes computed per block. Zero means
// no cap.
func WithMiningBudget(maxAttempts uint64) Option {
	return func(c config) config {
		c.budget.MaxAttempts = maxAttempts
		return c
	}
}

// WithMiningTimeout caps the wall-clock time spent mining one block.
func WithMiningTimeout(d time.Duration) Option {
	return func(c config) config {
		c.budget.Timeout = d
		return c
	}
}

// WithWorkers splits the nonce search across n goroutines.
func WithWorkers(n int) Option {
	return func(c config) config {
		c.budget.Workers = n
		return c
	}
}

// WithDefaultScore sets the annotation score used by SubmitTransaction and
// the genesis block.
func WithDefaultScore(score float64) Option {
	return func(c config) config {
		c.defaultScore = score
		return c
	}
}

func WithGenesisTransaction(tx Transaction) Option {
	return func(c config) config {
		c.genesisTx = tx
		return c
	}
}

// WithClock overrides the source of block timestamps.
func WithClock(now func() time.Time) Option {
	return func(c config) config {
		if now != nil {
			c.now = now
		}
		return c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c config) config {
		if logger != nil {
			c.logger = logger
		}
		return c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c config) config {
		c.metrics = m
		return c
	}
}
