package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/ratelimit"
	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
	"github.com/JDRay42/semanticweft/pkg/visibility"
)

const defaultListLimit = 50

// UnitsHandler implements:
//
//	POST /v1/units
//	GET  /v1/units/{id}
//	GET  /v1/units?type=&author=&since=&after=&limit=
//	GET  /v1/units/{id}/subgraph?depth=
func UnitsHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/units")
		path = strings.Trim(path, "/")

		switch {
		case path == "" && r.Method == http.MethodPost:
			handleSubmitUnit(w, r, srv)
		case path == "" && r.Method == http.MethodGet:
			handleListUnits(w, r, srv)
		case strings.HasSuffix(path, "/subgraph") && r.Method == http.MethodGet:
			id := strings.TrimSuffix(path, "/subgraph")
			handleSubgraph(w, r, srv, id)
		case r.Method == http.MethodGet:
			handleGetUnit(w, r, srv, path)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})
}

func handleSubmitUnit(w http.ResponseWriter, r *http.Request, srv *server.Server) {
	if ip := clientIP(r); srv.RateLimiter != nil && !srv.RateLimiter.Allow(ip) {
		w.Header().Set("Retry-After", ratelimit.FormatRetryAfterSeconds(srv.RateLimiter.RetryAfter(ip)))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "submission rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	if srv.Config.PoWRequired {
		if !checkPoW(r, body, srv.Config.PoWDifficulty) {
			writeJSON(w, http.StatusPreconditionRequired, struct {
				Error  string                   `json:"error"`
				Code   string                   `json:"code"`
				PoWReq ratelimit.PoWRequirement  `json:"pow_required"`
			}{
				Error:  "proof of work required",
				Code:   "pow_required",
				PoWReq: ratelimit.PoWRequirement{Algorithm: ratelimit.DefaultPoWAlgorithm, Difficulty: srv.Config.PoWDifficulty},
			})
			return
		}
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
	if err := identity.Verify(&u); err != nil {
		writeError(w, http.StatusUnauthorized, "bad_signature", err.Error())
		return
	}

	learnedFrom := ""
	if did, err := authenticateRequest(r, body, srv); err == nil {
		if peer, perr := srv.Store.GetPeer(r.Context(), did); perr == nil {
			learnedFrom = peer.NodeID
		}
	}

	result, err := srv.Store.PutUnit(r.Context(), &u, learnedFrom)
	if err != nil {
		if err == storage.ErrIDConflict {
			writeError(w, http.StatusConflict, "conflict", "id already stored with different content")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "store failed")
		return
	}

	if result == storage.Created && srv.Dispatcher != nil {
		// Detached from the request context: net/http cancels r.Context() the
		// moment this handler returns, but network/limited fan-out (§4.6) has
		// no other delivery path and must still run to completion.
		dispatchCtx := context.WithoutCancel(r.Context())
		go func() {
			if dispatchErr := srv.Dispatcher.Dispatch(dispatchCtx, &u, learnedFrom); dispatchErr != nil {
				srv.Logger.Warn("dispatch failed", "unit_id", u.ID, "error", dispatchErr)
			}
		}()
	}

	status := http.StatusOK
	if result == storage.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, u)
}

func handleGetUnit(w http.ResponseWriter, r *http.Request, srv *server.Server, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "malformed unit id")
		return
	}

	stored, err := srv.Store.GetUnit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unit not found")
		return
	}

	viewerDID, _ := authenticateRequest(r, nil, srv)
	if !visibility.MayRead(&stored.Unit, viewerDID) {
		// 404, never 403 — limited-visibility opacity, §4.5.
		writeError(w, http.StatusNotFound, "not_found", "unit not found")
		return
	}
	writeJSON(w, http.StatusOK, stored.Unit)
}

func handleListUnits(w http.ResponseWriter, r *http.Request, srv *server.Server) {
	q := r.URL.Query()
	filter := storage.UnitFilter{}
	if types := q.Get("type"); types != "" {
		filter.Types = []unit.Type{unit.Type(types)}
	}
	filter.Author = q.Get("author")
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		}
	}

	var after uuid.UUID
	if a := q.Get("after"); a != "" {
		after, _ = uuid.Parse(a)
	}
	limit := defaultListLimit
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	units, hasMore, err := srv.Store.ListUnits(r.Context(), filter, after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "list failed")
		return
	}

	// public only — §4.4: network/limited units are never listed globally.
	plain := make([]unit.Unit, len(units))
	for i, su := range units {
		plain[i] = su.Unit
	}
	plain = visibility.FilterListable(plain)

	writeJSON(w, http.StatusOK, struct {
		Units   []unit.Unit `json:"units"`
		HasMore bool        `json:"has_more"`
	}{Units: plain, HasMore: hasMore})
}

func handleSubgraph(w http.ResponseWriter, r *http.Request, srv *server.Server, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "malformed unit id")
		return
	}

	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			depth = n
		}
	}

	units, err := srv.Store.Subgraph(r.Context(), id, depth)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "root unit not found")
		return
	}

	viewerDID, _ := authenticateRequest(r, nil, srv)
	writeJSON(w, http.StatusOK, struct {
		Units []unit.Unit `json:"units"`
	}{Units: visibility.FilterReadable(units, viewerDID)})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}

func checkPoW(r *http.Request, body []byte, difficulty int) bool {
	header := r.Header.Get("X-Sweft-PoW")
	if header == "" {
		return false
	}
	nonce, hash, ok := ratelimit.ParsePoWHeader(header)
	if !ok {
		return false
	}
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return ratelimit.VerifyPoW(envelope.ID, nonce, hash, difficulty)
}

