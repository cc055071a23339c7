// Package signer seals ledger blocks.
//
// Two schemes are available. SchemeHashChain is the default and reproduces
// the ledger's historical signature format: an iterated SHA3-256 digest of the
// message prefixed by the signer's public key. It is NOT public-key
// cryptography and offers no post-quantum guarantee: a signature can only be
// checked by the instance that produced it, because verification recomputes
// the signature. SchemeEdDSA is an opt-in Ed25519 scheme whose signatures can
// be checked with the public key alone.
package signer

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Signature is the textual seal attached to a block: "<publicKey>:<digest>".
type Signature string

// Separator joins the public key and the digest. It never occurs in hex.
const Separator = ":"

// Scheme names a signature construction.
type Scheme string

const (
	SchemeHashChain Scheme = "hashchain"
	SchemeEdDSA     Scheme = "eddsa"
)

var (
	ErrUnknownScheme     = errors.New("unknown signature scheme")
	ErrMalformed         = errors.New("malformed signature")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Signer produces and checks signatures with a single key pair.
type Signer interface {
	Scheme() Scheme
	PublicKey() string
	Sign(msg []byte) (Signature, error)
	Verify(msg []byte, sig Signature) bool
}

// ParseScheme maps a user supplied name to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch s := Scheme(strings.ToLower(strings.TrimSpace(name))); s {
	case SchemeHashChain, SchemeEdDSA:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// New creates a signer of the given scheme with a fresh key pair.
func New(scheme Scheme, opts ...Option) (Signer, error) {
	var (
		s   Signer
		err error
	)
	switch scheme {
	case SchemeHashChain:
		s, err = NewHashChain(opts...)
	case SchemeEdDSA:
		s, err = NewEdDSA(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Split separates a signature into its public key and digest parts.
func (s Signature) Split() (publicKey, digest string, err error) {
	publicKey, digest, ok := strings.Cut(string(s), Separator)
	if !ok || publicKey == "" || digest == "" {
		return "", "", ErrMalformed
	}
	return publicKey, digest, nil
}

type config struct {
	rounds int
	rand   io.Reader
}

// DefaultRounds is the number of hash iterations of the hash-chain scheme.
const DefaultRounds = 10

type Option func(config) config

// WithRounds sets the number of digest iterations of the hash-chain scheme.
// Values below 1 are ignored.
func WithRounds(rounds int) Option {
	return func(c config) config {
		if rounds > 0 {
			c.rounds = rounds
		}
		return c
	}
}

// WithRand sets the entropy source used for key generation.
func WithRand(r io.Reader) Option {
	return func(c config) config {
		if r != nil {
			c.rand = r
		}
		return c
	}
}

func newConfig(opts []Option) config {
	c := config{rounds: DefaultRounds}
	for _, opt := range opts {
		c = opt(c)
	}
	return c
}
