package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPLimiterAllowsWithinBurst(t *testing.T) {
	l := NewIPLimiter(2)
	require.True(t, l.Allow("1.2.3.4"))
	require.True(t, l.Allow("1.2.3.4"))
}

func TestIPLimiterTracksPerIP(t *testing.T) {
	l := NewIPLimiter(1)
	require.True(t, l.Allow("1.1.1.1"))
	require.True(t, l.Allow("2.2.2.2"))
}

func TestParsePoWHeader(t *testing.T) {
	nonce, hash, ok := ParsePoWHeader("abc:deadbeef")
	require.True(t, ok)
	require.Equal(t, "abc", nonce)
	require.Equal(t, "deadbeef", hash)

	_, _, ok = ParsePoWHeader("malformed")
	require.False(t, ok)
}

func TestVerifyPoWAcceptsMatchingDifficulty(t *testing.T) {
	unitID := "019526b2-f68a-7c3e-a0b4-1d2e3f4a5b6c"
	var nonce string
	var sum [32]byte
	for n := 0; ; n++ {
		nonce = hex.EncodeToString([]byte{byte(n), byte(n >> 8)})
		sum = sha256.Sum256([]byte(unitID + ":" + nonce))
		if leadingZeroBits(sum[:]) >= 1 {
			break
		}
	}
	hash := hex.EncodeToString(sum[:])
	require.True(t, VerifyPoW(unitID, nonce, hash, 1))
}

func TestVerifyPoWRejectsHashMismatch(t *testing.T) {
	require.False(t, VerifyPoW("id", "nonce", "deadbeef", 1))
}
