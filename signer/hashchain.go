package signer

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

const privateKeySize = 32

// HashChain is the placeholder signature scheme. See the package
// documentation for why it must not be mistaken for asymmetric cryptography.
type HashChain struct {
	privateKey string
	publicKey  string
	rounds     int
}

var _ Signer = (*HashChain)(nil)

// NewHashChain generates a private key and derives the public key from it.
func NewHashChain(opts ...Option) (*HashChain, error) {
	c := newConfig(opts)
	r := c.rand
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, privateKeySize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	priv := hex.EncodeToString(seed)
	return &HashChain{
		privateKey: priv,
		publicKey:  derivePublicKey(priv),
		rounds:     c.rounds,
	}, nil
}

func derivePublicKey(privateKey string) string {
	sum := sha256.Sum256([]byte(privateKey))
	return hex.EncodeToString(sum[:])
}

func (h *HashChain) Scheme() Scheme { return SchemeHashChain }

func (h *HashChain) PublicKey() string { return h.publicKey }

// Sign hashes msg rounds times with SHA3-256 and prefixes the public key.
// It is deterministic and never fails.
func (h *HashChain) Sign(msg []byte) (Signature, error) {
	return h.sign(msg), nil
}

func (h *HashChain) sign(msg []byte) Signature {
	digest := msg
	for i := 0; i < h.rounds; i++ {
		sum := sha3.Sum256(digest)
		digest = sum[:]
	}
	return Signature(h.publicKey + Separator + hex.EncodeToString(digest))
}

// Verify recomputes the signature of msg and compares it with sig.
func (h *HashChain) Verify(msg []byte, sig Signature) bool {
	want := h.sign(msg)
	return subtle.ConstantTimeCompare([]byte(want), []byte(sig)) == 1
}
