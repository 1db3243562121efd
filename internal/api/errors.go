// Package api implements the node's HTTP surface, §6. Routing follows the
// teacher's manual path-prefix-stripping + method-switch style
// (internal/api/v2/edge_sync.go) rather than a router library — the example
// corpus never reaches for one for this kind of small, stable endpoint set.
package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the {error, code} object of §6.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
