package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

func TestHandleDeliverInboxRejectsUnknownSender(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := InboxHandler(srv)

	stranger, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	owner := "did:key:zOwnerAgent"

	u := unit.Unit{
		ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "hi",
		CreatedAt: time.Now().UTC(), Author: stranger.DID,
	}
	proof, err := identity.Sign(stranger, &u, u.CreatedAt)
	require.NoError(t, err)
	u.Proof = proof
	body, err := json.Marshal(u)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/agents/"+owner+"/inbox", bytes.NewReader(body))
	signRequest(t, req, body, stranger)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 403, rec.Code)
}

func TestHandleDeliverInboxAcceptsFromRegisteredPeer(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := InboxHandler(srv)
	owner := "did:key:zOwnerAgent"

	peerKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	_, err = srv.Store.UpsertPeer(context.Background(), &storage.PeerInfo{
		NodeID: peerKP.DID, APIBase: "https://peer.example",
	}, 100)
	require.NoError(t, err)

	u := unit.Unit{
		ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "delivered",
		CreatedAt: time.Now().UTC(), Author: peerKP.DID,
	}
	proof, err := identity.Sign(peerKP, &u, u.CreatedAt)
	require.NoError(t, err)
	u.Proof = proof
	body, err := json.Marshal(u)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/agents/"+owner+"/inbox", bytes.NewReader(body))
	signRequest(t, req, body, peerKP)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 204, rec.Code)
}

func TestHandleReadInboxRequiresOwnerSignature(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := InboxHandler(srv)

	req := httptest.NewRequest("GET", "/v1/agents/"+kp.DID+"/inbox", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}
