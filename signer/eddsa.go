package signer

import (
	"encoding/hex"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/sign/eddsa"
	"go.dedis.ch/kyber/v4/suites"
	"go.dedis.ch/kyber/v4/util/random"
)

var suite suites.Suite = suites.MustFind("Ed25519")

// EdDSA signs with Ed25519. Signatures are deterministic and verifiable with
// the public key only, see VerifyEdDSA.
type EdDSA struct {
	key       *eddsa.EdDSA
	publicKey string
}

var _ Signer = (*EdDSA)(nil)

// NewEdDSA generates an Ed25519 key pair.
func NewEdDSA(opts ...Option) (*EdDSA, error) {
	c := newConfig(opts)
	stream := suite.RandomStream()
	if c.rand != nil {
		stream = random.New(c.rand)
	}
	key := eddsa.NewEdDSA(stream)
	pub, err := key.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return &EdDSA{key: key, publicKey: hex.EncodeToString(pub)}, nil
}

func (e *EdDSA) Scheme() Scheme { return SchemeEdDSA }

func (e *EdDSA) PublicKey() string { return e.publicKey }

func (e *EdDSA) Sign(msg []byte) (Signature, error) {
	sig, err := e.key.Sign(msg)
	if err != nil {
		return "", fmt.Errorf("eddsa sign: %w", err)
	}
	return Signature(e.publicKey + Separator + hex.EncodeToString(sig)), nil
}

// Verify checks sig against this signer's own public key.
func (e *EdDSA) Verify(msg []byte, sig Signature) bool {
	return VerifyEdDSA(e.publicKey, msg, sig) == nil
}

// VerifyEdDSA checks an EdDSA signature using only the hex encoded public key.
// The key embedded in sig must match publicKey.
func VerifyEdDSA(publicKey string, msg []byte, sig Signature) error {
	embedded, digest, err := sig.Split()
	if err != nil {
		return err
	}
	if embedded != publicKey {
		return fmt.Errorf("%w: signed by a different key", ErrSignatureMismatch)
	}
	point, err := decodePoint(publicKey)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := eddsa.Verify(point, msg, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}

func decodePoint(publicKey string) (kyber.Point, error) {
	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformed, err)
	}
	point := suite.Point()
	if err := point.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformed, err)
	}
	return point, nil
}
