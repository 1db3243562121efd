package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/storage"
)

func TestHandleAnnouncePeerRequiresNodeIDAndAPIBase(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := PeersHandler(srv)

	body, _ := json.Marshal(peerView{NodeID: "", APIBase: ""})
	req := httptest.NewRequest("POST", "/v1/peers", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 422, rec.Code)
}

func TestHandleVotePeerRejectsMissingNodeIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := PeersHandler(srv)

	body, _ := json.Marshal(votePeerRequest{Reputation: 0.9})
	req := httptest.NewRequest("PATCH", "/v1/peers/did:key:zTarget", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 403, rec.Code)
}

func TestHandleVotePeerAppliesWeightedUpdate(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := PeersHandler(srv)
	ctx := context.Background()

	_, err := srv.Store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zCaller", APIBase: "https://caller.example", Reputation: 0.8}, 100)
	require.NoError(t, err)
	_, err = srv.Store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zTarget", APIBase: "https://target.example", Reputation: 0.5}, 100)
	require.NoError(t, err)

	body, _ := json.Marshal(votePeerRequest{Reputation: 0.9})
	req := httptest.NewRequest("PATCH", "/v1/peers/did:key:zTarget", bytes.NewReader(body))
	req.Header.Set("X-Node-ID", "did:key:zCaller")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var view peerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.InDelta(t, 0.5*(1-0.8)+0.9*0.8, view.Reputation, 1e-9)
}

func TestHandleListPeers(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := PeersHandler(srv)
	ctx := context.Background()

	_, err := srv.Store.UpsertPeer(ctx, &storage.PeerInfo{NodeID: "did:key:zA", APIBase: "https://a.example"}, 100)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/v1/peers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var body struct {
		Peers []peerView `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Peers, 1)
}
