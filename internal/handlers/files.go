package handlers

import (
	"errors"
	"net/http"

	"github.com/lyallcooper/reclaim/internal/files"
)

type deleteFilesRequest struct {
	Paths []string `json:"paths"`
}

type deleteFilesResponse struct {
	Success bool `json:"success"`
	*files.DeleteResult
}

type openLocationRequest struct {
	Path string `json:"path"`
}

// DeleteFiles handles POST /api/files/delete. Each path is attempted
// independently; protected names are refused.
func (h *Handler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req deleteFilesRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Paths == nil {
		writeError(w, http.StatusBadRequest, "paths array is required")
		return
	}

	for _, p := range req.Paths {
		if !h.cfg.IsPathAllowed(p) {
			writeError(w, http.StatusForbidden, "path outside the allowed paths: "+p)
			return
		}
	}

	res := h.registry.DeleteFiles(req.Paths)
	writeJSON(w, http.StatusOK, deleteFilesResponse{Success: true, DeleteResult: res})
}

// OpenLocation handles POST /api/files/open-location
func (h *Handler) OpenLocation(w http.ResponseWriter, r *http.Request) {
	var req openLocationRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	err := files.OpenLocation(req.Path)
	if errors.Is(err, files.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file or directory does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
