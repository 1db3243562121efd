// Package ratelimit implements the per-IP token bucket submission limiter
// and the proof-of-work admission gate described in spec.md §4.8. The
// limiter is a thin wrapper over golang.org/x/time/rate, the same limiter
// type used elsewhere in the example corpus for a fixed-rate/bounded-burst
// guard in front of an expensive operation.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter hands out a token-bucket limiter per client IP, creating one on
// first sight and reusing it thereafter. The teacher's in-memory peer table
// is guarded by a single RWMutex with a reader-parallel hot path (server.go);
// the same shape fits here since rate-limit checks are the hottest path in
// the submission handler.
type IPLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewIPLimiter builds a limiter allowing ratePerSecond sustained requests
// per IP with a burst of the same size, per SWEFT_RATE_LIMIT.
func NewIPLimiter(ratePerSecond float64) *IPLimiter {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &IPLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPLimiter) Allow(ip string) bool {
	return l.limiterFor(ip).Allow()
}

// RetryAfter returns the duration a caller at ip should wait before the
// bucket next admits a token, for use in a 429 Retry-After header.
func (l *IPLimiter) RetryAfter(ip string) time.Duration {
	res := l.limiterFor(ip).Reserve()
	defer res.Cancel()
	return res.Delay()
}

func (l *IPLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[ip]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[ip]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.rps, l.burst)
	l.limiters[ip] = lim
	return lim
}

// PoWRequirement is the {algorithm, difficulty} object advertised in
// discovery and echoed on a 428 response.
type PoWRequirement struct {
	Algorithm  string `json:"algorithm"`
	Difficulty int    `json:"difficulty"`
}

// DefaultPoWAlgorithm is the only algorithm this node advertises.
const DefaultPoWAlgorithm = "sha256-leading-zero-bits"

// ParsePoWHeader splits an "X-Sweft-PoW: nonce:hash" header value into its
// nonce and hash parts.
func ParsePoWHeader(header string) (nonce, hash string, ok bool) {
	parts := strings.SplitN(header, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// VerifyPoW reports whether nonce proves difficulty leading zero bits of
// work over unitID, per §4.8: leading_zero_bits(hash(unit_id || ":" || nonce)) ≥ difficulty.
func VerifyPoW(unitID, nonce, claimedHash string, difficulty int) bool {
	sum := sha256.Sum256([]byte(unitID + ":" + nonce))
	computed := hex.EncodeToString(sum[:])
	if computed != claimedHash {
		return false
	}
	return leadingZeroBits(sum[:]) >= difficulty
}

func leadingZeroBits(b []byte) int {
	count := 0
	for _, byt := range b {
		if byt == 0 {
			count += 8
			continue
		}
		count += bits.LeadingZeros8(byt)
		break
	}
	return count
}

// FormatRetryAfterSeconds formats d as the integer-second value expected in
// a Retry-After header, rounding up so a client never retries too early.
func FormatRetryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if d > time.Duration(secs)*time.Second {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// PoWRequirementEchoMessage renders a message for a missing or invalid PoW
// header, naming the required algorithm and difficulty. The submission
// handler's 428 body does not use it; that body carries a fixed message
// plus the requirement object.
func PoWRequirementEchoMessage(req PoWRequirement) string {
	return fmt.Sprintf("proof of work required: %s difficulty %d", req.Algorithm, req.Difficulty)
}
