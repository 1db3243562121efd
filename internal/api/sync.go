package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JDRay42/semanticweft/internal/server"
	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
	"github.com/JDRay42/semanticweft/pkg/visibility"
)

const syncKeepaliveInterval = 25 * time.Second

// SyncHandler implements GET /v1/sync?type=&author=&since=&after=&limit=,
// §4.6. It is exempt from the submission rate limiter — pull sync is a read
// path, not a write path, §4.8 — and serves either a single JSON page or a
// Server-Sent Events stream depending on Accept, with Last-Event-ID treated
// as equivalent to ?after=.
func SyncHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}

		filter, after, limit := syncParams(r)

		if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			serveSyncStream(w, r, srv, filter, after)
			return
		}

		units, hasMore, err := srv.Store.ListUnits(r.Context(), filter, after, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "sync failed")
			return
		}
		plain := visibility.FilterListable(toPlainUnits(units))
		writeJSON(w, http.StatusOK, struct {
			Units   []unit.Unit `json:"units"`
			HasMore bool        `json:"has_more"`
		}{Units: plain, HasMore: hasMore})
	})
}

func syncParams(r *http.Request) (storage.UnitFilter, uuid.UUID, int) {
	q := r.URL.Query()
	filter := storage.UnitFilter{}
	if t := q.Get("type"); t != "" {
		filter.Types = []unit.Type{unit.Type(t)}
	}
	filter.Author = q.Get("author")
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = t
		}
	}

	afterStr := q.Get("after")
	if id := r.Header.Get("Last-Event-ID"); afterStr == "" && id != "" {
		afterStr = id
	}
	var after uuid.UUID
	if afterStr != "" {
		after, _ = uuid.Parse(afterStr)
	}

	limit := defaultListLimit
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	return filter, after, limit
}

func toPlainUnits(stored []storage.StoredUnit) []unit.Unit {
	out := make([]unit.Unit, len(stored))
	for i, su := range stored {
		out[i] = su.Unit
	}
	return out
}

// serveSyncStream pages through ListUnits repeatedly, emitting each public
// unit as an SSE event with id: set to the unit id so a reconnecting client
// can resume via Last-Event-ID, and falls back to a keepalive comment when
// the store has nothing new to offer.
func serveSyncStream(w http.ResponseWriter, r *http.Request, srv *server.Server, filter storage.UnitFilter, after uuid.UUID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusNotImplemented, "streaming_unsupported", "server does not support streaming")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor := after
	ticker := time.NewTicker(syncKeepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		units, _, err := srv.Store.ListUnits(ctx, filter, cursor, defaultListLimit)
		if err != nil {
			return
		}
		if len(units) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
		}
		cursor = units[len(units)-1].Unit.ID
		plain := visibility.FilterListable(toPlainUnits(units))

		for _, u := range plain {
			payload, err := json.Marshal(u)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: unit\ndata: %s\n\n", u.ID, payload); err != nil {
				return
			}
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
