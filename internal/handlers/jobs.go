package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/scheduler"
)

// jobView is the JSON shape of a scheduled job.
type jobView struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	TargetPath     string     `json:"targetPath"`
	TargetSizeGB   float64    `json:"targetSizeGB"`
	MaxDepth       int        `json:"maxDepth"`
	CronExpression string     `json:"cronExpression"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
	LastTaskID     string     `json:"lastTaskId,omitempty"`
}

func toJobView(job *db.ScheduledJob) jobView {
	return jobView{
		ID:             job.ID,
		Name:           job.Name,
		TargetPath:     job.TargetPath,
		TargetSizeGB:   job.TargetSizeGB,
		MaxDepth:       job.MaxDepth,
		CronExpression: job.CronExpression,
		Enabled:        job.Enabled,
		LastRunAt:      job.LastRunAt,
		NextRunAt:      job.NextRunAt,
	}
}

type jobRequest struct {
	Name           string  `json:"name"`
	TargetPath     string  `json:"targetPath"`
	TargetSizeGB   float64 `json:"targetSizeGB"`
	MaxDepth       int     `json:"maxDepth"`
	CronExpression string  `json:"cronExpression"`
	Enabled        *bool   `json:"enabled"`
	RunAfterSave   bool    `json:"runAfterSave"`
}

type runJobResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// parseJob validates a job request. The job is returned even on error.
func (h *Handler) parseJob(req jobRequest) (*db.ScheduledJob, error) {
	job := &db.ScheduledJob{
		Name:           strings.TrimSpace(req.Name),
		TargetPath:     strings.TrimSpace(req.TargetPath),
		TargetSizeGB:   req.TargetSizeGB,
		MaxDepth:       req.MaxDepth,
		CronExpression: strings.TrimSpace(req.CronExpression),
		Enabled:        req.Enabled == nil || *req.Enabled,
	}
	if job.TargetSizeGB <= 0 {
		job.TargetSizeGB = 1
	}
	if job.MaxDepth <= 0 {
		job.MaxDepth = scanner.DefaultMaxDepth
	}

	if job.Name == "" {
		return job, errors.New("name is required")
	}
	if job.TargetPath == "" {
		return job, errors.New("targetPath is required")
	}
	path, err := filepath.Abs(config.ExpandPath(job.TargetPath))
	if err != nil {
		return job, fmt.Errorf("invalid targetPath: %w", err)
	}
	job.TargetPath = path
	if !h.cfg.IsPathAllowed(path) {
		return job, fmt.Errorf("path not allowed: %s", path)
	}

	nextRun, err := scheduler.NextRun(job.CronExpression, time.Now())
	if err != nil {
		return job, fmt.Errorf("invalid cron expression: %w", err)
	}
	job.NextRunAt = &nextRun
	return job, nil
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*db.ScheduledJob, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	job, err := h.db.GetScheduledJob(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return job, true
}

// Jobs handles GET /api/jobs
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.db.ListScheduledJobs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		view := toJobView(job)
		if run, err := h.db.GetLastRunForJob(job.ID); err == nil {
			view.LastTaskID = run.TaskID
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.parseJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.db.CreateScheduledJob(job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job: "+err.Error())
		return
	}
	h.log.Info("job created", zap.Int64("job", created.ID), zap.String("cron", created.CronExpression))

	if req.RunAfterSave {
		h.startJob(w, created)
		return
	}
	writeJSON(w, http.StatusCreated, toJobView(created))
}

// UpdateJob handles PUT /api/jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Enabled == nil {
		req.Enabled = &existing.Enabled
	}

	job, err := h.parseJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.ID = existing.ID
	job.LastRunAt = existing.LastRunAt
	job.CreatedAt = existing.CreatedAt

	if err := h.db.UpdateScheduledJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.RunAfterSave {
		h.startJob(w, job)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// DeleteJob handles DELETE /api/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.db.DeleteScheduledJob(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ToggleJob handles POST /api/jobs/{id}/toggle
func (h *Handler) ToggleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	job.Enabled = !job.Enabled
	if err := h.db.SetJobEnabled(job.ID, job.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Don't fire immediately for a schedule that lapsed while disabled
	if job.Enabled && h.scheduler != nil {
		if err := h.scheduler.UpdateNextRun(job); err != nil {
			h.log.Warn("failed to reschedule job", zap.Int64("job", job.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// RunJob handles POST /api/jobs/{id}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	h.startJob(w, job)
}

func (h *Handler) startJob(w http.ResponseWriter, job *db.ScheduledJob) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	task, err := h.scheduler.RunNow(job)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runJobResponse{TaskID: task.ID(), Status: "started"})
}
