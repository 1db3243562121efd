package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func signRequest(t *testing.T, kp *KeyPair, r *http.Request) {
	t.Helper()
	r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	r.Header.Set("Host", r.Host)
	headers := []string{"(request-target)", "host", "date"}
	signingStr, err := SigningString(r, headers)
	require.NoError(t, err)
	sig := ed25519.Sign(kp.Private, []byte(signingStr))
	header := fmt.Sprintf(`keyId="%s#key1",algorithm="ed25519",headers="%s",signature="%s"`,
		kp.DID, strings.Join(headers, " "), base64.StdEncoding.EncodeToString(sig))
	r.Header.Set("Signature", header)
}

func TestVerifyRequestAcceptsValidSignature(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/v1/agents/"+kp.DID, nil)
	r.Host = "node.example"
	signRequest(t, kp, r)

	did, err := VerifyRequest(r, nil, func(d string) (ed25519.PublicKey, error) {
		require.Equal(t, kp.DID, d)
		return kp.Public, nil
	})
	require.NoError(t, err)
	require.Equal(t, kp.DID, did)
}

func TestVerifyRequestRejectsStaleDate(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/v1/agents/"+kp.DID, nil)
	r.Host = "node.example"
	r.Header.Set("Date", time.Now().Add(-1*time.Hour).UTC().Format(http.TimeFormat))
	r.Header.Set("Signature", `keyId="x",algorithm="ed25519",headers="(request-target) host date",signature="AA=="`)

	_, err = VerifyRequest(r, nil, func(d string) (ed25519.PublicKey, error) { return kp.Public, nil })
	require.Error(t, err)
}
