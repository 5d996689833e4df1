package server

import (
	"net/http"
)

// handleSearchChannels proxies a channel search for the whitelist picker.
func (s *Server) handleSearchChannels(w http.ResponseWriter, r *http.Request) {
	if s.channels == nil {
		writeError(w, http.StatusServiceUnavailable, "channel search requires an API key")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results, err := s.channels.SearchChannels(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, "channel search failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}
