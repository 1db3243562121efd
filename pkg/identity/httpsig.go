package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// requiredSignatureHeaders is the fixed header set HTTP Signatures over
// mutating agent endpoints must cover, per spec.md §4.3.
var requiredSignatureHeaders = []string{"(request-target)", "host", "date"}

// ClockSkewTolerance bounds how stale or futuristic a signed request's Date
// header may be before it is rejected.
const ClockSkewTolerance = 5 * time.Minute

// SignatureParams is the parsed content of an HTTP `Signature` (or
// `Authorization: Signature ...`) header.
type SignatureParams struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// signedDID returns the DID named by keyId, stripping the verification
// method fragment if present.
func (p SignatureParams) signedDID() string {
	did, _, _ := strings.Cut(p.KeyID, "#")
	return did
}

// ParseSignatureHeader parses the `Signature:` header value
// `keyId="...",algorithm="ed25519",headers="...",signature="base64..."`.
func ParseSignatureHeader(header string) (*SignatureParams, error) {
	params := map[string]string{}
	for _, part := range splitSignatureParams(header) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	keyID, ok := params["keyId"]
	if !ok || keyID == "" {
		return nil, errors.New("identity: signature missing keyId")
	}
	sigB64, ok := params["signature"]
	if !ok || sigB64 == "" {
		return nil, errors.New("identity: signature missing signature value")
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("identity: bad signature encoding: %w", err)
	}
	headersField := params["headers"]
	if headersField == "" {
		headersField = strings.Join(requiredSignatureHeaders, " ")
	}
	return &SignatureParams{
		KeyID:     keyID,
		Algorithm: params["algorithm"],
		Headers:   strings.Fields(headersField),
		Signature: sig,
	}, nil
}

func splitSignatureParams(header string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range header {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// SigningString reconstructs the string the signer signed over, from the
// header list named in the signature and the live request.
func SigningString(r *http.Request, headers []string) (string, error) {
	var lines []string
	for _, h := range headers {
		switch h {
		case "(request-target)":
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(r.Method), r.URL.RequestURI()))
		case "host":
			host := r.Host
			if host == "" {
				host = r.Header.Get("Host")
			}
			lines = append(lines, "host: "+host)
		default:
			v := r.Header.Get(h)
			lines = append(lines, fmt.Sprintf("%s: %s", strings.ToLower(h), v))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// VerifyRequest verifies an inbound HTTP Signature against the public key
// resolved from its keyId DID. resolvePub is injected so callers can
// resolve either a node's own identity, a peer's, or an agent's registered
// public key without this package depending on storage.
func VerifyRequest(r *http.Request, body []byte, resolvePub func(did string) (ed25519.PublicKey, error)) (did string, err error) {
	sigHeader := r.Header.Get("Signature")
	if sigHeader == "" {
		sigHeader = r.Header.Get("Authorization")
		sigHeader = strings.TrimPrefix(sigHeader, "Signature ")
	}
	if sigHeader == "" {
		return "", errors.New("identity: missing Signature header")
	}

	params, err := ParseSignatureHeader(sigHeader)
	if err != nil {
		return "", err
	}
	for _, want := range requiredSignatureHeaders {
		covered := false
		for _, h := range params.Headers {
			if strings.EqualFold(h, want) {
				covered = true
				break
			}
		}
		if !covered {
			return "", fmt.Errorf("identity: signature does not cover %q", want)
		}
	}

	if err := checkDateFreshness(r); err != nil {
		return "", err
	}
	if err := checkDigest(r, body); err != nil {
		return "", err
	}

	pub, err := resolvePub(params.signedDID())
	if err != nil {
		return "", fmt.Errorf("identity: resolve keyId: %w", err)
	}

	signingStr, err := SigningString(r, params.Headers)
	if err != nil {
		return "", err
	}
	if !ed25519.Verify(pub, []byte(signingStr), params.Signature) {
		return "", ErrSignatureMismatch
	}
	return params.signedDID(), nil
}

func checkDateFreshness(r *http.Request) error {
	dateHdr := r.Header.Get("Date")
	if dateHdr == "" {
		return errors.New("identity: missing Date header")
	}
	t, err := http.ParseTime(dateHdr)
	if err != nil {
		return fmt.Errorf("identity: unparseable Date header: %w", err)
	}
	if d := time.Since(t); d > ClockSkewTolerance || d < -ClockSkewTolerance {
		return fmt.Errorf("identity: Date header outside %s clock skew tolerance", ClockSkewTolerance)
	}
	return nil
}

// checkDigest verifies the Digest header against the request body when a
// body is present, per spec.md §4.3 ("digest (of the body, when present)").
// Callers must read the body into memory first (handlers need to anyway, to
// decode JSON) and pass it in, since the net/http request body is a
// single-read stream.
func checkDigest(r *http.Request, body []byte) error {
	digestHdr := r.Header.Get("Digest")
	if digestHdr == "" {
		if len(body) == 0 {
			return nil
		}
		return errors.New("identity: missing Digest header for request with body")
	}
	algAndVal := strings.SplitN(digestHdr, "=", 2)
	if len(algAndVal) != 2 || !strings.EqualFold(algAndVal[0], "SHA-256") {
		return errors.New("identity: unsupported Digest algorithm")
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	if !strings.EqualFold(want, algAndVal[1]) {
		return errors.New("identity: Digest mismatch")
	}
	return nil
}

// FormatClockSkewSeconds renders ClockSkewTolerance for diagnostics.
func FormatClockSkewSeconds() string {
	return strconv.Itoa(int(ClockSkewTolerance.Seconds()))
}

// ComputeDigestHeader renders the Digest header value for an outbound
// request body, the signing-side counterpart to checkDigest.
func ComputeDigestHeader(body []byte) (string, error) {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// SignRaw signs arbitrary bytes (a SigningString result) with k's private
// key, for use by outbound S2S calls (federation fan-out, sync).
func SignRaw(k *KeyPair, signingString []byte) ([]byte, error) {
	if k == nil {
		return nil, errors.New("identity: nil keypair")
	}
	return ed25519.Sign(k.Private, signingString), nil
}

// FormatSignatureHeader renders a Signature header value for keyId did,
// signing over headers, with raw signature bytes sig.
func FormatSignatureHeader(did string, headers []string, sig []byte) string {
	return fmt.Sprintf(`keyId="%s#key1",algorithm="ed25519",headers="%s",signature="%s"`,
		did, strings.Join(headers, " "), base64.StdEncoding.EncodeToString(sig))
}
