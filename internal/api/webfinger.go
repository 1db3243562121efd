package api

import (
	"encoding/json"
	"net/http"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/federation"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

// WebFingerHandler serves GET /.well-known/webfinger?resource=acct:{did}@{host},
// §4.4.
func WebFingerHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}

		resource := r.URL.Query().Get("resource")
		did, _, ok := federation.ResourceHostSplit(resource)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_resource", "malformed resource parameter")
			return
		}

		agent, err := srv.Store.GetAgent(r.Context(), did)
		if err != nil {
			if err == storage.ErrNotFound {
				writeError(w, http.StatusNotFound, "not_found", "agent not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal", "lookup failed")
			return
		}

		jrd := federation.JRD{
			Subject: "acct:" + did,
			Links: []federation.JRDLink{
				{Rel: federation.InboxRel, Href: agent.InboxURL},
			},
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(jrd)
	})
}
