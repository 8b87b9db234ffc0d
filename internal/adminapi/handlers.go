package adminapi

import (
	"net/http"
	"strconv"

	"github.com/arkeep-io/switchboard/internal/messagelog"
	"github.com/arkeep-io/switchboard/internal/switchboard"
)

// StatusProvider is the subset of *switchboard.Switchboard the debug
// handlers read. Declared locally so tests can supply a fake.
type StatusProvider interface {
	SpaceCount() int
	ConnectionCount() int
	DHTAlgorithm() switchboard.DHTConfig
}

type healthHandler struct{}

func (healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	Ok(w, envelope{"status": "ok"})
}

type spacesHandler struct {
	sb StatusProvider
}

func (h spacesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dht := h.sb.DHTAlgorithm()
	Ok(w, envelope{
		"spaces":          h.sb.SpaceCount(),
		"connections":     h.sb.ConnectionCount(),
		"dht_algorithm":   dht.Algorithm.String(),
		"redundant_count": dht.RedundantCount,
	})
}

type messagesHandler struct {
	log *messagelog.Log
}

// ServeHTTP returns the most recent logged messages, oldest first. The
// count is capped by ?limit=, defaulting to 100.
func (h messagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	Ok(w, h.log.Recent(limit))
}
