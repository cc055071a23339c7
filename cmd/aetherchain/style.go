package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/luca-patrignani/aetherchain/ledger"
	"github.com/luca-patrignani/aetherchain/metrics"
)

func printBanner(w io.Writer) error {
	banner, err := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("A", pterm.FgCyan.ToStyle()),
		putils.LettersFromStringWithStyle("ether", pterm.FgDarkGray.ToStyle()),
		putils.LettersFromStringWithStyle("C", pterm.FgCyan.ToStyle()),
		putils.LettersFromStringWithStyle("hain", pterm.FgDarkGray.ToStyle()),
	).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, banner)
	return err
}

func printChain(w io.Writer, c *ledger.Chain) error {
	data := pterm.TableData{{"#", "Hash", "Previous", "Nonce", "Score", "Transactions"}}
	for _, b := range c.Blocks() {
		data = append(data, []string{
			strconv.FormatUint(b.Index, 10),
			shorten(b.Hash),
			shorten(b.PreviousHash),
			strconv.FormatUint(b.Nonce, 10),
			strconv.FormatFloat(b.AnnotationScore, 'f', -1, 64),
			describeTransactions(b.Transactions),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func printSummary(w io.Writer, c *ledger.Chain) error {
	blocks := c.Blocks()
	block1 := "N/A"
	if len(blocks) > 1 {
		block1 = blocks[1].Hash
	}

	var valid string
	if err := c.Verify(); err != nil {
		valid = pterm.LightRed("false (" + err.Error() + ")")
	} else {
		valid = pterm.LightGreen("true")
	}

	info := pterm.Sprintfln("Chain valid: %s", valid) +
		pterm.Sprintfln("Total blocks: %d", len(blocks)) +
		pterm.Sprintfln("Genesis Hash: %s", blocks[0].Hash) +
		pterm.Sprintfln("Block 1 Hash: %s", block1) +
		pterm.Sprintfln("Signer: %s %s", c.Signer().Scheme(), shorten(c.Signer().PublicKey()))
	box := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).
		WithTitle(pterm.LightYellow("|CHAIN|")).WithTitleTopCenter().
		Sprint(strings.TrimRight(info, "\n"))
	_, err := fmt.Fprintln(w, box)
	return err
}

// printTamper edits an exported copy of the chain, never the chain itself.
func printTamper(w io.Writer, c *ledger.Chain) error {
	views := c.Blocks()
	if len(views) < 2 {
		return fmt.Errorf("tamper needs at least 2 blocks, have %d", len(views))
	}
	views[1].Transactions[0]["amount"] = 999

	err := ledger.VerifyViews(views, c.Difficulty(), c.Signer())
	if err == nil {
		_, err = fmt.Fprint(w, pterm.Error.Sprintfln("Tampered copy still verifies"))
		return err
	}
	_, werr := fmt.Fprint(w, pterm.Success.Sprintfln("Tampering detected: %v", err))
	return werr
}

func printMetrics(w io.Writer, samples []metrics.Sample) error {
	data := pterm.TableData{{"Metric", "Labels", "Value"}}
	for _, s := range samples {
		data = append(data, []string{s.Name, formatLabels(s.Labels), strconv.FormatFloat(s.Value, 'f', -1, 64)})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + labels[k]
	}
	return strings.Join(pairs, ",")
}

func describeTransactions(txs []ledger.Transaction) string {
	parts := make([]string, len(txs))
	for i, tx := range txs {
		if from, ok := tx["from"]; ok {
			parts[i] = fmt.Sprintf("%v -> %v: %v", from, tx["to"], tx["amount"])
			continue
		}
		parts[i] = fmt.Sprint(map[string]any(tx))
	}
	return strings.Join(parts, "; ")
}

func shorten(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
