// Package server holds the Server struct wiring every dependency the HTTP
// handlers and background tasks need, the same shape the teacher uses
// (internal/server/server.go) to avoid threading a dozen individual
// parameters through every handler constructor.
package server

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/JDRay42/semanticweft/internal/config"
	"github.com/JDRay42/semanticweft/pkg/federation"
	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/ratelimit"
	"github.com/JDRay42/semanticweft/pkg/storage"
)

// Server bundles every dependency the HTTP surface and periodic tasks need.
type Server struct {
	Config   *config.Config
	Store    storage.Store
	Logger   hclog.Logger
	Identity *identity.KeyPair

	RateLimiter *ratelimit.IPLimiter
	Resolver    *federation.Resolver
	Dispatcher  *federation.Dispatcher
	HTTPClient  *http.Client

	// StartedAt records process start for discovery/diagnostics.
	StartedAt time.Time
}

// NodeID returns the node's own DID, the identity the federation layer and
// self-vote checks (I7) compare callers against.
func (s *Server) NodeID() string {
	return s.Identity.DID
}
