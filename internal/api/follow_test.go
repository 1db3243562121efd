package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/storage"
)

func TestFollowThenListFollowersIncrementsContribution(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := FollowHandler(srv)
	target := "did:key:zTargetAgent"

	require.NoError(t, srv.Store.UpsertAgent(context.Background(), &storage.AgentProfile{
		DID: kp.DID, InboxURL: "https://agent.example/inbox", Status: storage.AgentStatusFull,
	}))

	req := httptest.NewRequest("POST", "/v1/agents/"+kp.DID+"/following/"+target, nil)
	signRequest(t, req, nil, kp)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 204, rec.Code)

	agent, err := srv.Store.GetAgent(req.Context(), kp.DID)
	require.NoError(t, err)
	require.Equal(t, 1, agent.ContributionCount)

	listReq := httptest.NewRequest("GET", "/v1/agents/"+kp.DID+"/following", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	require.Equal(t, 200, listRec.Code)

	var body struct {
		Following []string `json:"following"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	require.Equal(t, []string{target}, body.Following)
}

func TestUnfollowRequiresMatchingSignature(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := FollowHandler(srv)
	target := "did:key:zTargetAgent"

	req := httptest.NewRequest("DELETE", "/v1/agents/"+kp.DID+"/following/"+target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}
