package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/files"
	"github.com/lyallcooper/reclaim/internal/types"
)

type diskResponse struct {
	Path string `json:"path"`
	types.Volume
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Dust        bool   `json:"dust"`
	DustVersion string `json:"dustVersion,omitempty"`
	ActiveScans int    `json:"activeScans"`
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Disk handles GET /api/disk?path=
func (h *Handler) Disk(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" && h.settings != nil {
		if s, err := h.settings.Load(); err == nil {
			path = s.ScanPath
		}
	}
	if path == "" {
		path = "/"
	}
	path = config.ExpandPath(path)

	vol, err := files.Usage(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diskResponse{Path: path, Volume: *vol})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: h.version}
	if h.registry != nil {
		resp.ActiveScans = len(h.registry.Active())
	}
	if h.executor != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if v, err := h.executor.Version(ctx); err == nil {
			resp.Dust = true
			resp.DustVersion = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
