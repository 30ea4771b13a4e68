package http

import (
	"net/http"

	"github.com/yscope/log-ingestor/internal/api/respond"
)

// healthCheck reports process liveness.
func healthCheck(w http.ResponseWriter, _ *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
