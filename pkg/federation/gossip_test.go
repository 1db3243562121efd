package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/storage"
)

func TestReconcilePeerListMergesKnownTargetReputation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(remotePeerList{Peers: []struct {
			NodeID     string  `json:"node_id"`
			Reputation float64 `json:"reputation"`
		}{
			{NodeID: "did:key:zTarget", Reputation: 0.9},
		}})
	}))
	defer srv.Close()

	store, err := storage.OpenSQLite(":memory:", hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	_, err = store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zSource", APIBase: srv.URL, Reputation: 0.8}, 100)
	require.NoError(t, err)
	_, err = store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zTarget", APIBase: "https://target.example", Reputation: 0.5}, 100)
	require.NoError(t, err)

	p := NewPuller(srv.Client(), store, hclog.NewNullLogger())
	require.NoError(t, p.ReconcilePeerList(ctx, "did:key:zSource", srv.URL, "did:key:zSelf"))

	target, err := store.GetPeer(ctx, "did:key:zTarget")
	require.NoError(t, err)
	require.InDelta(t, 0.5*(1-0.8)+0.9*0.8, target.Reputation, 1e-9)
}

func TestReconcilePeerListSkipsUnknownTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(remotePeerList{Peers: []struct {
			NodeID     string  `json:"node_id"`
			Reputation float64 `json:"reputation"`
		}{
			{NodeID: "did:key:zStranger", Reputation: 0.1},
		}})
	}))
	defer srv.Close()

	store, err := storage.OpenSQLite(":memory:", hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	_, err = store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zSource", APIBase: srv.URL, Reputation: 0.8}, 100)
	require.NoError(t, err)

	p := NewPuller(srv.Client(), store, hclog.NewNullLogger())
	require.NoError(t, p.ReconcilePeerList(ctx, "did:key:zSource", srv.URL, "did:key:zSelf"))

	_, err = store.GetPeer(ctx, "did:key:zStranger")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
