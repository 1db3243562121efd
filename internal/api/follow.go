package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JDRay42/semanticweft/internal/server"
)

// FollowHandler implements:
//
//	POST/DELETE /v1/agents/{did}/following/{target}
//	GET         /v1/agents/{did}/following
//	GET         /v1/agents/{did}/followers
func FollowHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/agents"), "/")

		var did, rest string
		if idx := strings.Index(path, "/"); idx >= 0 {
			did, rest = path[:idx], path[idx+1:]
		} else {
			writeError(w, http.StatusNotFound, "not_found", "unknown route")
			return
		}

		switch {
		case rest == "following" && r.Method == http.MethodGet:
			handleListFollowing(w, r, srv, did)
		case rest == "followers" && r.Method == http.MethodGet:
			handleListFollowers(w, r, srv, did)
		case strings.HasPrefix(rest, "following/") && r.Method == http.MethodPost:
			handleFollow(w, r, srv, did, strings.TrimPrefix(rest, "following/"))
		case strings.HasPrefix(rest, "following/") && r.Method == http.MethodDelete:
			handleUnfollow(w, r, srv, did, strings.TrimPrefix(rest, "following/"))
		default:
			writeError(w, http.StatusNotFound, "not_found", "unknown route")
		}
	})
}

// graduationThreshold is how many authenticated contributions move a
// probationary agent to full status when the configuration sets no
// positive ProbationThreshold, §4.7.
const graduationThreshold = 10

func handleFollow(w http.ResponseWriter, r *http.Request, srv *server.Server, did, target string) {
	signerDID, err := authenticateRequest(r, nil, srv)
	if err != nil || signerDID != did {
		writeError(w, http.StatusUnauthorized, "unsigned", "valid signature from the follower is required")
		return
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "follow target required")
		return
	}

	if err := srv.Store.Follow(r.Context(), did, target); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "follow failed")
		return
	}

	// A contribution is any authenticated follow, §4.7.
	threshold := graduationThreshold
	if srv.Config != nil && srv.Config.ProbationThreshold > 0 {
		threshold = srv.Config.ProbationThreshold
	}
	if _, err := srv.Store.IncrementContribution(r.Context(), did, threshold); err != nil {
		srv.Logger.Warn("contribution increment failed", "did", did, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleUnfollow(w http.ResponseWriter, r *http.Request, srv *server.Server, did, target string) {
	signerDID, err := authenticateRequest(r, nil, srv)
	if err != nil || signerDID != did {
		writeError(w, http.StatusUnauthorized, "unsigned", "valid signature from the follower is required")
		return
	}
	if err := srv.Store.Unfollow(r.Context(), did, target); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "unfollow failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleListFollowing(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	after, limit := pagingParams(r)
	targets, hasMore, err := srv.Store.ListFollowing(r.Context(), did, after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "list failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Following []string `json:"following"`
		HasMore   bool     `json:"has_more"`
	}{Following: targets, HasMore: hasMore})
}

func handleListFollowers(w http.ResponseWriter, r *http.Request, srv *server.Server, did string) {
	after, limit := pagingParams(r)
	followers, hasMore, err := srv.Store.ListFollowers(r.Context(), did, after, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "list failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Followers []string `json:"followers"`
		HasMore   bool      `json:"has_more"`
	}{Followers: followers, HasMore: hasMore})
}

func pagingParams(r *http.Request) (after string, limit int) {
	q := r.URL.Query()
	after = q.Get("after")
	limit = defaultListLimit
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	return after, limit
}
