package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/dust"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/scheduler"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/settings"
)

const maxBodyBytes = 1 << 20

// Deps are the services the HTTP layer is built on. Scheduler, Executor
// and Static are optional.
type Deps struct {
	DB          *db.DB
	Config      *config.Config
	Registry    *services.Registry
	Settings    *settings.Store
	Scheduler   *scheduler.Scheduler
	Executor    dust.ExecutorInterface
	Static      fs.FS
	Version     string
	DisableCSRF bool
	Logger      *zap.Logger
}

// Handler holds all HTTP handlers
type Handler struct {
	db          *db.DB
	cfg         *config.Config
	registry    *services.Registry
	settings    *settings.Store
	scheduler   *scheduler.Scheduler
	executor    dust.ExecutorInterface
	staticFS    fs.FS
	version     string
	disableCSRF bool
	log         *zap.Logger
	upgrader    websocket.Upgrader
	csrf        *csrfSigner
}

// New creates a new Handler
func New(d Deps) *Handler {
	if d.Config == nil {
		d.Config = &config.Config{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		db:          d.DB,
		cfg:         d.Config,
		registry:    d.Registry,
		settings:    d.Settings,
		scheduler:   d.Scheduler,
		executor:    d.Executor,
		staticFS:    d.Static,
		version:     d.Version,
		disableCSRF: d.DisableCSRF,
		log:         d.Logger.Named("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		csrf: newCSRFSigner(),
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Scans
	mux.HandleFunc("POST /api/scan/start", h.StartScan)
	mux.HandleFunc("GET /api/scan/status/{id}", h.ScanProgressSSE)
	mux.HandleFunc("GET /api/scan/ws/{id}", h.ScanProgressWS)
	mux.HandleFunc("POST /api/scan/stop/{id}", h.StopScan)
	mux.HandleFunc("GET /api/scan/result/{id}", h.ScanResult)
	mux.HandleFunc("GET /api/scan/active", h.ActiveScans)

	// Settings
	mux.HandleFunc("GET /api/settings", h.GetSettings)
	mux.HandleFunc("POST /api/settings", h.SaveSettings)

	// Files
	mux.HandleFunc("POST /api/files/delete", h.DeleteFiles)
	mux.HandleFunc("POST /api/files/open-location", h.OpenLocation)

	// History
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/history/{id}", h.HistoryItem)
	mux.HandleFunc("DELETE /api/history/{id}", h.DeleteHistoryItem)
	mux.HandleFunc("GET /api/actions", h.Actions)

	// Jobs
	mux.HandleFunc("GET /api/jobs", h.Jobs)
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("PUT /api/jobs/{id}", h.UpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.DeleteJob)
	mux.HandleFunc("POST /api/jobs/{id}/run", h.RunJob)
	mux.HandleFunc("POST /api/jobs/{id}/toggle", h.ToggleJob)

	// Overview
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/disk", h.Disk)
	mux.HandleFunc("GET /api/csrf", h.CSRFToken)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Static UI
	if h.staticFS != nil {
		mux.Handle("GET /", http.FileServer(http.FS(h.staticFS)))
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
