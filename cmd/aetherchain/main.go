// Command aetherchain drives the ledger from the command line: it builds a
// chain, mines blocks for the given transfers and prints the result.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
