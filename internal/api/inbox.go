package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

// InboxHandler implements:
//
//	GET  /v1/agents/{did}/inbox?after=&limit=   (owner-only read)
//	POST /v1/agents/{did}/inbox                 (S2S delivery)
func InboxHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/agents"), "/")
		const suffix = "/inbox"
		if !strings.HasSuffix(path, suffix) {
			writeError(w, http.StatusNotFound, "not_found", "unknown route")
			return
		}
		did := strings.TrimSuffix(path, suffix)

		switch r.Method {
		case http.MethodGet:
			handleReadInbox(w, r, srv, did)
		case http.MethodPost:
			handleDeliverInbox(w, r, srv, did)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})
}

func handleReadInbox(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	signerDID, err := authenticateRequest(r, nil, srv)
	if err != nil || signerDID != did {
		writeError(w, http.StatusUnauthorized, "unsigned", "valid signature from the owner is required to read their inbox")
		return
	}

	after, limit := pagingParams(r)
	var afterID uuid.UUID
	if after != "" {
		afterID, _ = uuid.Parse(after)
	}

	units, hasMore, err := srv.Store.ReadInbox(r.Context(), did, afterID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "read inbox failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Units   []unit.Unit `json:"units"`
		HasMore bool        `json:"has_more"`
	}{Units: units, HasMore: hasMore})
}

// handleDeliverInbox accepts S2S push delivery of a unit into did's inbox.
// The deliverer must present a valid signature from either a known peer
// node_id or a registered agent — an unauthenticated caller cannot plant
// units in someone else's inbox.
func handleDeliverInbox(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	signerDID, err := authenticateRequest(r, body, srv)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unsigned", "valid signature required for inbox delivery")
		return
	}

	knownPeer := false
	if _, perr := srv.Store.GetPeer(r.Context(), signerDID); perr == nil {
		knownPeer = true
	}
	knownAgent := false
	if _, aerr := srv.Store.GetAgent(r.Context(), signerDID); aerr == nil {
		knownAgent = true
	}
	if !knownPeer && !knownAgent {
		writeError(w, http.StatusForbidden, "unknown_sender", "delivery signer is not a registered peer or agent")
		return
	}

	var u unit.Unit
	if err := json.Unmarshal(body, &u); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON")
		return
	}
	if err := unit.Validate(&u); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	learnedFrom := ""
	if knownPeer {
		learnedFrom = signerDID
	}
	if _, err := srv.Store.PutUnit(r.Context(), &u, learnedFrom); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "store failed")
		return
	}
	if err := srv.Store.AppendInbox(r.Context(), did, &u); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "inbox append failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
