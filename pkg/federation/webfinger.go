// Package federation implements the cursor-driven pull loop, the
// visibility-aware fan-out dispatcher, and WebFinger-based home-node
// resolution described in spec.md §4.6. HTTP calls follow the teacher's
// plain net/http + context-deadline style (internal/api/v2/edge_sync.go),
// since the example corpus has no HTTP client library beyond the standard
// library for outbound calls of this shape.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// JRD is the minimal JSON Resource Descriptor returned by a WebFinger
// lookup, enough to recover the agent's home api_base.
type JRD struct {
	Subject string    `json:"subject"`
	Links   []JRDLink `json:"links"`
}

// JRDLink is one WebFinger link relation.
type JRDLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// InboxRel is the WebFinger link relation naming an agent's inbox endpoint.
const InboxRel = "https://semanticweft.dev/rel/inbox"

// resolvedPeer caches a DID's resolved home node, invalidated on delivery
// failure per §4.6.
type resolvedPeer struct {
	apiBase   string
	inboxURL  string
	resolved  time.Time
}

// Resolver resolves a DID's home node via WebFinger, caching the result
// until it is invalidated or its ttl elapses.
type Resolver struct {
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]resolvedPeer
	ttl    time.Duration
}

// NewResolver builds a Resolver. ttl bounds how long a cached resolution is
// trusted before a fresh lookup is attempted even without an invalidation.
func NewResolver(client *http.Client, ttl time.Duration) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{client: client, cache: make(map[string]resolvedPeer), ttl: ttl}
}

// Invalidate drops any cached resolution for did, forcing the next Resolve
// to perform a fresh WebFinger lookup. Called on delivery failure, §4.6.
func (r *Resolver) Invalidate(did string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, did)
}

// Resolve returns the inbox URL for did, consulting the cache first.
func (r *Resolver) Resolve(ctx context.Context, did, host string) (inboxURL string, err error) {
	r.mu.RLock()
	entry, ok := r.cache[did]
	r.mu.RUnlock()
	if ok && (r.ttl <= 0 || time.Since(entry.resolved) < r.ttl) {
		return entry.inboxURL, nil
	}

	inboxURL, apiBase, err := lookupWebFinger(ctx, r.client, did, host)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[did] = resolvedPeer{apiBase: apiBase, inboxURL: inboxURL, resolved: time.Now()}
	r.mu.Unlock()
	return inboxURL, nil
}

// lookupWebFinger performs GET {host}/.well-known/webfinger?resource=acct:{did}@{host}
// and extracts the inbox link relation from the returned JRD.
func lookupWebFinger(ctx context.Context, client *http.Client, did, host string) (inboxURL, apiBase string, err error) {
	resource := fmt.Sprintf("acct:%s@%s", did, host)
	u := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s", host, url.QueryEscape(resource))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", "", fmt.Errorf("federation: build webfinger request: %w", err)
	}
	req.Header.Set("Accept", "application/jrd+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("federation: webfinger request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("federation: webfinger status %d for %s", resp.StatusCode, did)
	}

	var jrd JRD
	if err := json.NewDecoder(resp.Body).Decode(&jrd); err != nil {
		return "", "", fmt.Errorf("federation: decode webfinger response: %w", err)
	}
	for _, link := range jrd.Links {
		if link.Rel == InboxRel {
			return link.Href, apiBaseFromInbox(link.Href), nil
		}
	}
	return "", "", fmt.Errorf("federation: no inbox link for %s", did)
}

// apiBaseFromInbox derives the node's api_base from an inbox URL by
// trimming the agent-specific suffix, for display/cache bookkeeping only.
func apiBaseFromInbox(inboxURL string) string {
	idx := strings.Index(inboxURL, "/v1/agents/")
	if idx < 0 {
		return inboxURL
	}
	return inboxURL[:idx]
}

// ResourceHostSplit splits a WebFinger "resource=acct:{did}@{host}" value by
// its *last* @, future-proofing against DID methods containing @ (§4.4).
func ResourceHostSplit(resource string) (did, host string, ok bool) {
	const prefix = "acct:"
	if !strings.HasPrefix(resource, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(resource, prefix)
	idx := strings.LastIndex(rest, "@")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
