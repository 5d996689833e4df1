package server

import (
	"encoding/json"
	"net/http"

	"loungeskip/internal/config"
)

// handleGetConfig returns the current on-disk configuration with the
// password hash redacted.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.cfgMu.Lock()
	out := *s.cfg
	s.cfgMu.Unlock()
	out.PasswordHash = ""
	writeJSON(w, http.StatusOK, out)
}

// handleUpdateConfig validates and persists a new configuration. The running
// listeners keep their snapshot; a restart picks the new file up.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var next config.Config
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	// The hash is never sent to clients, so an empty value means unchanged.
	if next.PasswordHash == "" {
		next.PasswordHash = s.cfg.PasswordHash
	}
	if err := config.Save(s.cfgPath, &next); err != nil {
		writeError(w, http.StatusInternalServerError, "saving config: "+err.Error())
		return
	}
	*s.cfg = next

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"restart_required": true,
	})
}
