package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/settings"
)

type saveSettingsResponse struct {
	Success  bool              `json:"success"`
	Settings settings.Settings `json:"settings"`
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SaveSettings handles POST /api/settings. Fields missing from the body
// keep their stored value. Scans started afterwards use the new settings.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.settings.Save(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Reconfigure(saved); err != nil {
		h.log.Error("failed to apply settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, saveSettingsResponse{Success: true, Settings: saved})
}
