package server

import (
	"net/http"
	"sort"

	"loungeskip/internal/models"
)

// handleListDevices returns the live status of every supervised device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	statuses := []models.DeviceStatus{}
	if s.statuses != nil {
		statuses = s.statuses.Snapshot()
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	writeJSON(w, http.StatusOK, statuses)
}
