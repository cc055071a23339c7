// Package ledger implements an append-only chain of proof-of-work blocks.
//
// # Core Components
//
// Chain: an ordered, append-only sequence of sealed blocks sharing a single
// signer and a fixed difficulty. It owns genesis creation, transaction intake
// and integrity verification.
//
// Block: the mutable candidate for the next position in the chain. Mining
// searches its nonce space and converts it into a SealedBlock.
//
// SealedBlock: a mined and signed block. Its fields are only reachable through
// accessors, so a sealed block cannot be altered by callers.
//
// BlockView: a plain, JSON tagged snapshot of a sealed block used for printing
// and export. VerifyViews validates a slice of views with the same rules as
// Chain.Verify.
//
// # Security Properties
//
//   - Tamper detection: every block hash is recomputed from its content
//   - Linkage: each block stores the hash of its predecessor, genesis stores "0"
//   - Proof of work: every hash starts with difficulty '0' characters
//   - Sealing: the message "{index}:{hash}:{score}" is signed by the chain signer
//
// With the default hash-chain signer, seals can only be checked by the chain
// that produced them; see package signer.
//
// # Usage
//
// Create a chain with NewChain, append with SubmitTransaction, and call Verify
// or IsValid at any time. Validation is a query: a tampered chain is reported,
// never repaired or rejected by the ledger itself.
package ledger
