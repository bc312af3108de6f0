package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/types"
)

const gib = 1024 * 1024 * 1024

type startScanRequest struct {
	TargetPath   string  `json:"targetPath"`
	TargetSizeGB float64 `json:"targetSizeGB"`
	MaxDepth     int     `json:"maxDepth"`
}

type startScanResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// activeTask is a snapshot with the task id repeated under taskId.
type activeTask struct {
	TaskID string `json:"taskId"`
	types.Snapshot
}

// resolveTarget validates a user supplied scan root and returns it as a
// clean absolute path, or an HTTP status and message.
func (h *Handler) resolveTarget(raw string) (string, int, string) {
	if raw == "" {
		return "", http.StatusBadRequest, "targetPath is required"
	}
	path, err := filepath.Abs(config.ExpandPath(raw))
	if err != nil {
		return "", http.StatusBadRequest, "invalid targetPath"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", http.StatusBadRequest, "targetPath does not exist"
	}
	if !info.IsDir() {
		return "", http.StatusBadRequest, "targetPath is not a directory"
	}
	if !h.cfg.IsPathAllowed(path) {
		return "", http.StatusForbidden, "targetPath is outside the allowed paths"
	}
	return path, 0, ""
}

// StartScan handles POST /api/scan/start
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path, status, msg := h.resolveTarget(req.TargetPath)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	if req.TargetSizeGB <= 0 {
		req.TargetSizeGB = 1
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = scanner.DefaultMaxDepth
	}

	task, err := h.registry.Start(scanner.Config{
		TargetPath: path,
		TargetSize: int64(req.TargetSizeGB * gib),
		MaxDepth:   req.MaxDepth,
	}, nil)
	if err != nil {
		h.log.Error("failed to start scan", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, startScanResponse{TaskID: task.ID(), Status: "started"})
}

// StopScan handles POST /api/scan/stop/{id}
func (h *Handler) StopScan(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Stop(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ScanResult handles GET /api/scan/result/{id}
func (h *Handler) ScanResult(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Result(r.PathValue("id"))
	if errors.Is(err, services.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ActiveScans handles GET /api/scan/active
func (h *Handler) ActiveScans(w http.ResponseWriter, r *http.Request) {
	active := h.registry.Active()
	out := make([]activeTask, len(active))
	for i, s := range active {
		out[i] = activeTask{TaskID: s.ID, Snapshot: s}
	}
	writeJSON(w, http.StatusOK, out)
}
