// Package api implements SemanticWeft's HTTP surface: unit submission and
// retrieval, peer federation, agent admission, follow graph, inbox
// delivery, and sync. Handlers are plain net/http, routed by path-prefix
// stripping and a method switch inside each handler, the same style the
// teacher's v2 edge-sync handler uses rather than reaching for a web
// framework.
package api

import (
	"net/http"
	"strings"

	"github.com/JDRay42/semanticweft/internal/server"
)

// NewRouter builds the top-level mux for a SemanticWeft node, wiring every
// handler in this package to its path.
func NewRouter(srv *server.Server) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/units", UnitsHandler(srv))
	mux.Handle("/v1/units/", UnitsHandler(srv))
	mux.Handle("/v1/peers", PeersHandler(srv))
	mux.Handle("/v1/peers/", PeersHandler(srv))
	mux.Handle("/v1/sync", SyncHandler(srv))

	mux.Handle("/v1/agents/", agentsSubrouter(srv))

	mux.Handle("/.well-known/webfinger", WebFingerHandler(srv))
	mux.Handle("/.well-known/semanticweft", DiscoveryHandler(srv))

	return mux
}

// agentsSubrouter dispatches the /v1/agents/ tree across AgentsHandler,
// FollowHandler, and InboxHandler by inspecting the path tail, since all
// three share the {did} prefix.
func agentsSubrouter(srv *server.Server) http.Handler {
	agents := AgentsHandler(srv)
	follow := FollowHandler(srv)
	inbox := InboxHandler(srv)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/following") || strings.HasSuffix(path, "/followers") ||
			strings.Contains(path, "/following/"):
			follow.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/inbox"):
			inbox.ServeHTTP(w, r)
		default:
			agents.ServeHTTP(w, r)
		}
	})
}
