package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/types"
)

const historyPageSize = 20

// runView is the JSON shape of a stored scan.
type runView struct {
	ID               int64            `json:"id"`
	TaskID           string           `json:"taskId"`
	ScheduledJobID   *int64           `json:"scheduledJobId,omitempty"`
	TargetPath       string           `json:"targetPath"`
	TargetSize       int64            `json:"targetSize"`
	MaxDepth         int              `json:"maxDepth"`
	Status           types.Status     `json:"status"`
	StartedAt        time.Time        `json:"startedAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	Duration         string           `json:"duration"`
	ScannedCount     int64            `json:"scannedCount"`
	ProcessedEntries int64            `json:"processedEntries"`
	TotalCleanable   int64            `json:"totalCleanable"`
	DeletableCount   int              `json:"deletableCount"`
	TokenUsage       types.TokenUsage `json:"tokenUsage"`
	Error            string           `json:"error,omitempty"`
}

func toRunView(run *db.ScanRun) runView {
	v := runView{
		ID:               run.ID,
		TaskID:           run.TaskID,
		ScheduledJobID:   run.ScheduledJobID,
		TargetPath:       run.TargetPath,
		TargetSize:       run.TargetSize,
		MaxDepth:         run.MaxDepth,
		Status:           run.Status,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		Duration:         "-",
		ScannedCount:     run.ScannedCount,
		ProcessedEntries: run.ProcessedEntries,
		TotalCleanable:   run.TotalCleanable,
		DeletableCount:   run.DeletableCount,
		TokenUsage:       run.TokenUsage,
	}
	if run.CompletedAt != nil {
		v.Duration = formatDuration(run.CompletedAt.Sub(run.StartedAt))
	}
	if run.ErrorMessage != nil {
		v.Error = *run.ErrorMessage
	}
	return v
}

type historyResponse struct {
	Runs     []runView `json:"runs"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"hasMore"`
	NextPage int       `json:"nextPage,omitempty"`
}

type historyItemResponse struct {
	Run       runView               `json:"run"`
	Deletable []types.DeletableItem `json:"deletable"`
}

type actionView struct {
	ID             int64         `json:"id"`
	ActionType     db.ActionType `json:"actionType"`
	FilesProcessed int           `json:"filesProcessed"`
	FilesFailed    int           `json:"filesFailed"`
	BytesFreed     int64         `json:"bytesFreed"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func pageParam(r *http.Request) int {
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// History handles GET /api/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	offset := (page - 1) * historyPageSize

	runs, err := h.db.ListScanRuns(historyPageSize+1, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hasMore := len(runs) > historyPageSize
	if hasMore {
		runs = runs[:historyPageSize]
	}

	resp := historyResponse{Runs: make([]runView, 0, len(runs)), Page: page, HasMore: hasMore}
	if hasMore {
		resp.NextPage = page + 1
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunView(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HistoryItem handles GET /api/history/{id}
func (h *Handler) HistoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	run, err := h.db.GetScanRun(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items, err := h.db.ListDeletableItems(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyItemResponse{Run: toRunView(run), Deletable: items})
}

// DeleteHistoryItem handles DELETE /api/history/{id}
func (h *Handler) DeleteHistoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.db.DeleteScanRun(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Actions handles GET /api/actions
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	actions, err := h.db.ListActions(historyPageSize, (page-1)*historyPageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]actionView, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionView{
			ID:             a.ID,
			ActionType:     a.ActionType,
			FilesProcessed: a.FilesProcessed,
			FilesFailed:    a.FilesFailed,
			BytesFreed:     a.BytesFreed,
			StartedAt:      a.StartedAt,
			CompletedAt:    a.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
