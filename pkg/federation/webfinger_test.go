package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResourceHostSplitUsesLastAt(t *testing.T) {
	did, host, ok := ResourceHostSplit("acct:did:example:al@ice@node.example")
	require.True(t, ok)
	require.Equal(t, "did:example:al@ice", did)
	require.Equal(t, "node.example", host)
}

func TestResourceHostSplitRejectsMissingPrefix(t *testing.T) {
	_, _, ok := ResourceHostSplit("did:example:alice@node.example")
	require.False(t, ok)
}

func TestResolverCacheHitAvoidsLookup(t *testing.T) {
	r := NewResolver(nil, time.Hour)
	r.cache["did:key:zAlice"] = resolvedPeer{
		apiBase:  "https://node.example",
		inboxURL: "https://node.example/v1/agents/did:key:zAlice/inbox",
		resolved: time.Now(),
	}

	url, err := r.Resolve(nil, "did:key:zAlice", "node.example")
	require.NoError(t, err)
	require.Equal(t, "https://node.example/v1/agents/did:key:zAlice/inbox", url)
}

func TestResolverInvalidateForcesLookup(t *testing.T) {
	r := NewResolver(nil, time.Hour)
	r.cache["did:key:zAlice"] = resolvedPeer{
		apiBase:  "https://node.example",
		inboxURL: "https://node.example/v1/agents/did:key:zAlice/inbox",
		resolved: time.Now(),
	}
	r.Invalidate("did:key:zAlice")

	_, ok := r.cache["did:key:zAlice"]
	require.False(t, ok)
}
