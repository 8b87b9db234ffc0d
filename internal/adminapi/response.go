// Package adminapi exposes the switchboard's operational surface: health,
// Prometheus metrics, and a small debug API over current space/connection
// state. It carries no authentication — the switchboard's only identity
// model is the per-message AgentID/signature check in internal/switchboard,
// and this surface is meant for operators on a private admin network.
package adminapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the standard JSON response wrapper. Every response this
// package writes is {"data": ...}; there is no error envelope.
type envelope map[string]any

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response with payload wrapped in {"data": payload}.
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, envelope{"data": payload})
}
