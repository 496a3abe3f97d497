// Package handlers implements the local ingest/query surface's HTTP
// handlers (spec §6): health, CDM/object query and ingest, peer table
// management, maneuver announce/patch, and the metrics snapshot.
// Grounded on dittofs's pkg/controlplane/api/handlers (one small handler
// type per resource, constructed with the dependencies it needs and wired
// into the router by the api package).
package handlers

import (
	"encoding/json"
	"net/http"
)

// errorBody is the spec §6 CDM-ingest 400 body shape, reused for every
// handler error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, errorBody{Error: code, Message: message, Field: field})
}
