package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/reputation"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

// agentView is the wire representation of an AgentProfile.
type agentView struct {
	DID               string `json:"did"`
	InboxURL          string `json:"inbox_url"`
	DisplayName       string `json:"display_name,omitempty"`
	PublicKey         string `json:"public_key,omitempty"`
	Status            string `json:"status"`
	ContributionCount int    `json:"contribution_count"`
}

func toAgentView(a *storage.AgentProfile) agentView {
	return agentView{
		DID: a.DID, InboxURL: a.InboxURL, DisplayName: a.DisplayName,
		PublicKey: a.PublicKey, Status: a.Status, ContributionCount: a.ContributionCount,
	}
}

// AgentsHandler implements:
//
//	POST/GET/DELETE /v1/agents/{did}
//	POST            /v1/agents/{did}/apply
func AgentsHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/agents"), "/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "agent did required")
			return
		}

		if strings.HasSuffix(path, "/apply") && r.Method == http.MethodPost {
			did := strings.TrimSuffix(path, "/apply")
			handleApplyAgent(w, r, srv, did)
			return
		}

		switch r.Method {
		case http.MethodPost:
			handleRegisterAgent(w, r, srv, path)
		case http.MethodGet:
			handleGetAgent(w, r, srv, path)
		case http.MethodDelete:
			handleDeleteAgent(w, r, srv, path)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})
}

type registerAgentRequest struct {
	InboxURL    string `json:"inbox_url"`
	DisplayName string `json:"display_name,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
}

// handleRegisterAgent is the Tier 0 (operator) path — immediate full status.
func handleRegisterAgent(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	if !requireMatchingSignature(w, r, srv, did) {
		return
	}

	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON")
		return
	}

	profile := &storage.AgentProfile{
		DID: did, InboxURL: req.InboxURL, DisplayName: req.DisplayName,
		PublicKey: req.PublicKey, Status: storage.AgentStatusFull,
	}
	if err := srv.Store.UpsertAgent(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "register failed")
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(profile))
}

type applyAgentRequest struct {
	InboxURL    string `json:"inbox_url"`
	DisplayName string `json:"display_name,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
	SponsorDID  string `json:"sponsor_did,omitempty"`
}

// handleApplyAgent is the Tier 3 (self-service) path — probationary status,
// sponsor validated but non-binding, §4.7.
func handleApplyAgent(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	if !requireMatchingSignature(w, r, srv, did) {
		return
	}

	var req applyAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON")
		return
	}

	sponsorValid, err := reputation.ValidateSponsor(r.Context(), srv.Store, req.SponsorDID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "sponsor lookup failed")
		return
	}

	profile := &storage.AgentProfile{
		DID: did, InboxURL: req.InboxURL, DisplayName: req.DisplayName,
		PublicKey: req.PublicKey, Status: storage.AgentStatusProbationary, ContributionCount: 0,
	}
	if err := srv.Store.UpsertAgent(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "apply failed")
		return
	}

	if srv.Config.OperatorWebhook != "" {
		webhookCtx := context.WithoutCancel(r.Context())
		go func() {
			event := reputation.WebhookEvent{
				Event: "agent_applied", NodeID: srv.NodeID(), Agent: did,
				SponsorDID: req.SponsorDID, SponsorValid: sponsorValid,
			}
			if whErr := reputation.NotifyOperatorWebhook(webhookCtx, srv.HTTPClient, srv.Config.OperatorWebhook, event); whErr != nil {
				srv.Logger.Warn("operator webhook delivery failed", "error", whErr)
			}
		}()
	}

	writeJSON(w, http.StatusOK, toAgentView(profile))
}

func handleGetAgent(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	profile, err := srv.Store.GetAgent(r.Context(), did)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(profile))
}

func handleDeleteAgent(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	if !requireMatchingSignature(w, r, srv, did) {
		return
	}
	if err := srv.Store.DeleteAgent(r.Context(), did); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireMatchingSignature enforces that registration/apply/delete for
// {did} requires the signature DID equal {did}, §4.3. It consumes and
// restores r.Body so the caller's subsequent JSON decode still sees the
// full request body.
func requireMatchingSignature(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	signerDID, err := authenticateRequest(r, body, srv)
	if err != nil || signerDID != did {
		writeError(w, http.StatusUnauthorized, "unsigned", "valid signature from the named did is required")
		return false
	}
	return true
}
