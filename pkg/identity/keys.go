// Package identity implements Ed25519 keypair handling, did:key derivation,
// detached-proof signing/verification, and HTTP Signature verification for
// SemanticWeft nodes and agents (spec.md §4.3).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// ed25519MulticodecPrefix is the multicodec varint prefix for an Ed25519
// public key (0xed, 0x01), per the did:key Ed25519 method spec.
var ed25519MulticodecPrefix = []byte{0xed, 0x01}

// KeyPair holds a node or agent's Ed25519 signing material and its derived
// did:key identifier.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
	DID     string
}

// GenerateKeyPair creates a fresh Ed25519 keypair and derives its DID.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv, DID: DIDFromPublicKey(pub)}, nil
}

// KeyPairFromSeed reconstructs a KeyPair from a persisted 32-byte Ed25519
// seed, used to restore a node's identity across restarts.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Public: pub, Private: priv, DID: DIDFromPublicKey(pub)}, nil
}

// Seed returns the 32-byte seed to persist for later reconstruction.
func (k *KeyPair) Seed() []byte {
	return k.Private.Seed()
}

// DIDFromPublicKey derives the did:key identifier for an Ed25519 public
// key: "did:key:" followed by multibase-base58btc of 0xed01 || pubkey.
// The "z" multibase prefix denotes base58btc.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(ed25519MulticodecPrefix)+len(pub))
	buf = append(buf, ed25519MulticodecPrefix...)
	buf = append(buf, pub...)
	return "did:key:z" + base58.Encode(buf)
}

// PublicKeyFromDID decodes the did:key identifier back to its Ed25519
// public key, verifying the multicodec prefix.
func PublicKeyFromDID(did string) (ed25519.PublicKey, error) {
	const prefix = "did:key:z"
	if len(did) <= len(prefix) || did[:len(prefix)] != prefix {
		return nil, fmt.Errorf("identity: not a did:key: %q", did)
	}
	decoded, err := base58.Decode(did[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("identity: bad base58btc encoding: %w", err)
	}
	if len(decoded) != len(ed25519MulticodecPrefix)+ed25519.PublicKeySize {
		return nil, fmt.Errorf("identity: unexpected key length %d", len(decoded))
	}
	if decoded[0] != ed25519MulticodecPrefix[0] || decoded[1] != ed25519MulticodecPrefix[1] {
		return nil, fmt.Errorf("identity: not an Ed25519 multicodec key")
	}
	return ed25519.PublicKey(decoded[len(ed25519MulticodecPrefix):]), nil
}
