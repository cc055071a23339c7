// Package pow provides the low-level primitives shared by block hashing and
// mining: the SHA3-256 content digest, the leading-zero difficulty predicate
// and a bounded nonce search.
//
// # Difficulty
//
// A difficulty d is met by a hex digest whose first d characters are all '0'.
// Every additional zero multiplies the expected number of attempts by 16.
//
// # Liveness
//
// Search never gives up on its own when the Budget is the zero value. Callers
// that need a total operation must set MaxAttempts, Timeout, or cancel the
// context; an exhausted budget is reported as ErrBudgetExhausted and leaves
// nothing committed.
package pow
