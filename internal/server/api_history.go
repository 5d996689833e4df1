package server

import (
	"net/http"
	"strconv"

	"loungeskip/internal/models"
)

// handleListHistory returns the most recent recorded skips.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []models.SkipEvent{})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	skips, err := s.store.ListSkips(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if skips == nil {
		skips = []models.SkipEvent{}
	}
	writeJSON(w, http.StatusOK, skips)
}
