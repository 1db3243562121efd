package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/JDRay42/semanticweft/pkg/unit"
)

// Proof verification failure modes, named in spec.md §4.1.
var (
	ErrBadMethod            = errors.New("identity: BadMethod")
	ErrBadSignatureEncoding = errors.New("identity: BadSignatureEncoding")
	ErrSignatureMismatch    = errors.New("identity: SignatureMismatch")
)

// Sign produces a detached proof over u's canonical signing payload.
func Sign(k *KeyPair, u *unit.Unit, createdAt time.Time) (*unit.Proof, error) {
	payload, err := unit.Canonicalize(u)
	if err != nil {
		return nil, fmt.Errorf("identity: canonicalize for signing: %w", err)
	}
	sig := ed25519.Sign(k.Private, payload)
	return &unit.Proof{
		Method:  k.DID + "#" + k.DID[len("did:key:"):],
		Created: createdAt.UTC().Format("2006-01-02T15:04:05Z"),
		Value:   "z" + base58.Encode(sig),
	}, nil
}

// Verify checks u's proof offline, with no network lookup, per spec.md
// §4.1. A unit with no proof is neither verified nor rejected here — proof
// is optional at the model level; callers that require authorship enforce
// that separately.
func Verify(u *unit.Unit) error {
	if u.Proof == nil {
		return nil
	}
	did, _, ok := strings.Cut(u.Proof.Method, "#")
	if !ok {
		did = u.Proof.Method
	}
	pub, err := PublicKeyFromDID(did)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadMethod, err)
	}

	if len(u.Proof.Value) == 0 || u.Proof.Value[0] != 'z' {
		return fmt.Errorf("%w: value must be multibase base58btc", ErrBadSignatureEncoding)
	}
	sig, err := base58.Decode(u.Proof.Value[1:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignatureEncoding, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrBadSignatureEncoding, ed25519.SignatureSize, len(sig))
	}

	payload, err := unit.Canonicalize(u)
	if err != nil {
		return fmt.Errorf("identity: canonicalize for verification: %w", err)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return ErrSignatureMismatch
	}
	return nil
}
