package api

import (
	"net/http"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/ratelimit"
)

// discoveryDocument is the body of GET /.well-known/semanticweft, §4.4.
type discoveryDocument struct {
	NodeID          string                    `json:"node_id"`
	Name            string                    `json:"name,omitempty"`
	ProtocolVersion string                    `json:"protocol_version"`
	APIBase         string                    `json:"api_base"`
	Capabilities    []string                  `json:"capabilities"`
	SigningRequired bool                      `json:"signing_required,omitempty"`
	PoWRequired     *ratelimit.PoWRequirement `json:"pow_required,omitempty"`
	Contact         string                    `json:"contact,omitempty"`
}

// DiscoveryHandler serves GET /.well-known/semanticweft.
func DiscoveryHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}

		doc := discoveryDocument{
			NodeID:          srv.NodeID(),
			Name:            srv.Config.Name,
			ProtocolVersion: "1.0",
			APIBase:         srv.Config.APIBase,
			Capabilities:    []string{"units", "sync", "peers", "agents", "inbox"},
			SigningRequired: true,
			Contact:         srv.Config.Contact,
		}
		if srv.Config.PoWRequired {
			doc.PoWRequired = &ratelimit.PoWRequirement{
				Algorithm:  ratelimit.DefaultPoWAlgorithm,
				Difficulty: srv.Config.PoWDifficulty,
			}
		}
		writeJSON(w, http.StatusOK, doc)
	})
}
