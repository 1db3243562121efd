package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/reputation"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

// peerView is the JSON shape of a peer entry in list/announce responses.
type peerView struct {
	NodeID     string  `json:"node_id"`
	APIBase    string  `json:"api_base"`
	Reputation float64 `json:"reputation"`
}

// PeersHandler implements GET/POST /v1/peers and PATCH /v1/peers/{node_id}.
func PeersHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/peers"), "/")

		switch {
		case path == "" && r.Method == http.MethodGet:
			handleListPeers(w, r, srv)
		case path == "" && r.Method == http.MethodPost:
			handleAnnouncePeer(w, r, srv)
		case path != "" && r.Method == http.MethodPatch:
			handleVotePeer(w, r, srv, path)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})
}

func handleListPeers(w http.ResponseWriter, r *http.Request, srv *server.Server) {
	peers, err := srv.Store.ListPeers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "list peers failed")
		return
	}
	out := make([]peerView, len(peers))
	for i, p := range peers {
		out[i] = peerView{NodeID: p.NodeID, APIBase: p.APIBase, Reputation: p.Reputation}
	}
	writeJSON(w, http.StatusOK, struct {
		Peers []peerView `json:"peers"`
	}{Peers: out})
}

func handleAnnouncePeer(w http.ResponseWriter, r *http.Request, srv *server.Server) {
	var req peerView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON")
		return
	}
	if req.NodeID == "" || req.APIBase == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "node_id and api_base are required")
		return
	}

	evicted, err := srv.Store.UpsertPeer(r.Context(), &storage.PeerInfo{
		NodeID:     req.NodeID,
		APIBase:    req.APIBase,
		Reputation: reputation.DefaultReputation,
	}, srv.Config.MaxPeers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "announce failed")
		return
	}
	if evicted != "" {
		srv.Logger.Info("evicted lowest-reputation peer to admit new peer", "evicted", evicted, "new", req.NodeID)
	}
	writeJSON(w, http.StatusOK, req)
}

// votePeerRequest is the PATCH /v1/peers/{node_id} body.
type votePeerRequest struct {
	Reputation float64 `json:"reputation"`
}

func handleVotePeer(w http.ResponseWriter, r *http.Request, srv *server.Server, targetNodeID string) {
	callerNodeID := r.Header.Get("X-Node-ID")
	if callerNodeID == "" {
		writeError(w, http.StatusForbidden, "missing_identity", "X-Node-ID header required")
		return
	}

	caller, err := srv.Store.GetPeer(r.Context(), callerNodeID)
	callerKnown := err == nil

	var req votePeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON")
		return
	}

	target, err := srv.Store.GetPeer(r.Context(), targetNodeID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "peer not found")
		return
	}

	peers, err := srv.Store.ListPeers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "list peers failed")
		return
	}
	reps := make([]float64, len(peers))
	for i, p := range peers {
		reps[i] = p.Reputation
	}

	voteReq := reputation.VoteRequest{
		CallerNodeID:  callerNodeID,
		CallerKnown:   callerKnown,
		TargetNodeID:  targetNodeID,
		ReceivingNode: srv.NodeID(),
		ProposedRep:   req.Reputation,
		CurrentRep:    target.Reputation,
		AllLocalReps:  reps,
		SigmaFactor:   srv.Config.ReputationVoteSigmaFactor,
	}
	if callerKnown {
		voteReq.CallerRep = caller.Reputation
	}

	newRep, err := reputation.Vote(voteReq)
	if err != nil {
		writeError(w, http.StatusForbidden, "vote_rejected", err.Error())
		return
	}

	if err := srv.Store.UpdatePeerReputation(r.Context(), targetNodeID, newRep); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "update reputation failed")
		return
	}
	writeJSON(w, http.StatusOK, peerView{NodeID: targetNodeID, APIBase: target.APIBase, Reputation: newRep})
}
