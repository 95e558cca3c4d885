package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.vault.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("health check: store unreadable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	credentialsTotal.Set(float64(n))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"credentials": n,
	})
}
