package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/aetherchain/ledger"
	"github.com/luca-patrignani/aetherchain/metrics"
	"github.com/luca-patrignani/aetherchain/signer"
)

type options struct {
	difficulty  uint
	scheme      string
	workers     int
	maxAttempts uint64
	timeout     time.Duration
	score       float64
	verbose     bool
	jsonOutput  bool
	showMetrics bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "aetherchain",
		Short:        "Append-only proof-of-work ledger",
		Long:         "Build a chain of mined and signed blocks, one transaction per block, and verify its integrity.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.UintVarP(&opts.difficulty, "difficulty", "d", 4, "leading zero hex digits required in every block hash")
	flags.StringVar(&opts.scheme, "scheme", string(signer.SchemeHashChain), "signature scheme: hashchain or eddsa")
	flags.IntVarP(&opts.workers, "workers", "w", 1, fmt.Sprintf("goroutines searching the nonce space, 1..%d", maxWorkers()))
	flags.Uint64Var(&opts.maxAttempts, "max-attempts", 0, "maximum hashes per block, 0 for no limit")
	flags.DurationVar(&opts.timeout, "timeout", 0, "maximum mining time per block, 0 for no limit")
	flags.Float64Var(&opts.score, "score", ledger.DefaultAnnotationScore, "annotation score attached to each block")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the chain as JSON")
	flags.BoolVar(&opts.showMetrics, "metrics", false, "print mining and validation metrics")

	root.AddCommand(newDemoCmd(opts), newSubmitCmd(opts))
	return root
}

// maxWorkers is the upper bound of --workers.
func maxWorkers() int {
	return runtime.NumCPU() * 4
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logger := pterm.DefaultLogger.WithWriter(w)
	if verbose {
		logger = logger.WithLevel(pterm.LogLevelDebug)
	}
	return slog.New(pterm.NewSlogHandler(logger))
}

// session is one chain together with the registry its metrics live in.
type session struct {
	chain    *ledger.Chain
	registry *prometheus.Registry
	logger   *slog.Logger
}

func (o *options) newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	scheme, err := signer.ParseScheme(o.scheme)
	if err != nil {
		return nil, err
	}
	if o.workers < 1 || o.workers > maxWorkers() {
		return nil, fmt.Errorf("invalid --workers %d: want 1..%d", o.workers, maxWorkers())
	}
	logger := newLogger(cmd.ErrOrStderr(), o.verbose)
	reg := prometheus.NewRegistry()

	chain, err := ledger.NewChain(ctx, o.difficulty,
		ledger.WithScheme(scheme),
		ledger.WithWorkers(o.workers),
		ledger.WithMiningBudget(o.maxAttempts),
		ledger.WithMiningTimeout(o.timeout),
		ledger.WithDefaultScore(o.score),
		ledger.WithLogger(logger),
		ledger.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}
	return &session{chain: chain, registry: reg, logger: logger}, nil
}

// print renders the chain and, if requested, the metrics.
func (o *options) print(w io.Writer, s *session) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.chain.Blocks())
	}
	if err := printChain(w, s.chain); err != nil {
		return err
	}
	if o.showMetrics {
		samples, err := metrics.Snapshot(s.registry)
		if err != nil {
			return err
		}
		return printMetrics(w, samples)
	}
	return nil
}

func newDemoCmd(opts *options) *cobra.Command {
	var tamper, banner bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Mine a genesis block and one transfer, then verify the chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if banner && !opts.jsonOutput {
				if err := printBanner(w); err != nil {
					return err
				}
			}

			s, err := opts.newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			tx := ledger.Transaction{"from": "alice", "to": "bob", "amount": 10}
			if err := s.chain.SubmitTransaction(cmd.Context(), tx); err != nil {
				return err
			}
			if err := opts.print(w, s); err != nil {
				return err
			}
			if opts.jsonOutput {
				return nil
			}

			if err := printSummary(w, s.chain); err != nil {
				return err
			}
			if tamper {
				return printTamper(w, s.chain)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tamper, "tamper", false, "edit block 1 of an exported copy and verify it again")
	cmd.Flags().BoolVar(&banner, "banner", true, "print the banner")
	return cmd
}

func newSubmitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "submit FROM:TO:AMOUNT...",
		Short:   "Mine one block per transfer and print the chain",
		Example: "  aetherchain submit alice:bob:10 bob:carol:2.5 --difficulty 3",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txs := make([]ledger.Transaction, 0, len(args))
			for _, arg := range args {
				tx, err := parseTransfer(arg)
				if err != nil {
					return err
				}
				txs = append(txs, tx)
			}

			s, err := opts.newSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			for _, tx := range txs {
				if err := s.chain.SubmitTransaction(cmd.Context(), tx); err != nil {
					return err
				}
			}
			if err := opts.print(cmd.OutOrStdout(), s); err != nil {
				return err
			}
			if !s.chain.IsValid() {
				return errors.New("chain failed verification")
			}
			return nil
		},
	}
}

// parseTransfer reads "from:to:amount" into a transaction.
func parseTransfer(arg string) (ledger.Transaction, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid transfer %q: want FROM:TO:AMOUNT", arg)
	}
	tx := ledger.Transaction{"from": parts[0], "to": parts[1]}
	if n, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
		tx["amount"] = n
		return tx, nil
	}
	f, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in %q: %w", arg, err)
	}
	tx["amount"] = f
	return tx, nil
}
