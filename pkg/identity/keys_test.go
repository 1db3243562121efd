package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDIDRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Contains(t, kp.DID, "did:key:z")

	pub, err := PublicKeyFromDID(kp.DID)
	require.NoError(t, err)
	require.Equal(t, kp.Public, pub)
}

func TestKeyPairFromSeedIsDeterministic(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)

	kp2, err := KeyPairFromSeed(kp1.Seed())
	require.NoError(t, err)
	require.Equal(t, kp1.DID, kp2.DID)
	require.Equal(t, kp1.Public, kp2.Public)
}

func TestPublicKeyFromDIDRejectsNonDIDKey(t *testing.T) {
	_, err := PublicKeyFromDID("did:web:example.com")
	require.Error(t, err)
}
