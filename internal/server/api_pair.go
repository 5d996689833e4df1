package server

import (
	"encoding/json"
	"net/http"

	"loungeskip/internal/config"
)

// handlePair exchanges a pairing code for the screen's stable id and appends
// the device to the config file. The new device starts on the next restart.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.pair == nil {
		writeError(w, http.StatusServiceUnavailable, "pairing not configured")
		return
	}

	var req struct {
		PairingCode string `json:"pairing_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PairingCode == "" {
		writeError(w, http.StatusBadRequest, "pairing_code is required")
		return
	}

	screenID, name, err := s.pair(r.Context(), req.PairingCode)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pairing failed: "+err.Error())
		return
	}

	device := config.Device{ScreenID: screenID, Name: name}

	s.cfgMu.Lock()
	exists := false
	for _, d := range s.cfg.Devices {
		if d.ScreenID == screenID {
			exists = true
			break
		}
	}
	if !exists {
		s.cfg.Devices = append(s.cfg.Devices, device)
		if err := config.Save(s.cfgPath, s.cfg); err != nil {
			s.cfgMu.Unlock()
			writeError(w, http.StatusInternalServerError, "saving config: "+err.Error())
			return
		}
	}
	s.cfgMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"device":           device,
		"restart_required": !exists,
	})
}
