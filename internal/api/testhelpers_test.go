package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/JDRay42/semanticweft/internal/config"
	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/ratelimit"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

func newTestServer(t *testing.T) (*server.Server, *identity.KeyPair) {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:", hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	cfg := config.Defaults()
	srv := &server.Server{
		Config:      &cfg,
		Store:       store,
		Logger:      hclog.NewNullLogger(),
		Identity:    kp,
		RateLimiter: ratelimit.NewIPLimiter(1000),
		HTTPClient:  &http.Client{},
		StartedAt:   time.Now(),
	}
	return srv, kp
}

// signRequest attaches Date, Digest, and a Signature header to req on
// behalf of kp, the same headers a real agent or peer client sends.
func signRequest(t *testing.T, req *http.Request, body []byte, kp *identity.KeyPair) {
	t.Helper()
	req.Host = req.URL.Host
	if req.Host == "" {
		req.Host = "node.example"
		req.URL.Host = "node.example"
	}
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	headers := []string{"(request-target)", "host", "date"}
	if len(body) > 0 {
		digest, err := identity.ComputeDigestHeader(body)
		if err != nil {
			t.Fatalf("compute digest: %v", err)
		}
		req.Header.Set("Digest", digest)
		headers = append(headers, "digest")
	}
	signingStr, err := identity.SigningString(req, headers)
	if err != nil {
		t.Fatalf("signing string: %v", err)
	}
	sig, err := identity.SignRaw(kp, []byte(signingStr))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Header.Set("Signature", identity.FormatSignatureHeader(kp.DID, headers, sig))
}
