// Package app provides shared application initialization logic used by both
// the server (CLI) and desktop (Wails) entry points.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/dust"
	"github.com/lyallcooper/reclaim/internal/handlers"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/scheduler"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/settings"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// DustBinary path override. If empty, RECLAIM_DUST_PATH, a bundled
	// copy and $PATH are tried in that order.
	DustBinary string

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// Static holds the web UI. Nil disables it.
	Static fs.FS

	// BindAddress overrides RECLAIM_BIND. Use "127.0.0.1" for desktop mode
	// to only allow local connections.
	BindAddress string

	// DisableCSRF disables CSRF protection. Use for desktop mode where
	// the server only accepts local connections and CSRF isn't a concern.
	DisableCSRF bool
}

// Core is the set of services shared by the HTTP server and the CLI.
type Core struct {
	Config   *config.Config
	Database *db.DB
	Settings *settings.Store
	Executor *dust.Executor
	Registry *services.Registry
	Logger   *zap.Logger
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	*Core
	HTTP      *http.Server
	Scheduler *scheduler.Scheduler
}

// NewCore loads configuration, initializes logging and opens the database.
// The registry is configured from the stored settings.
func NewCore(dustBinary string) (*Core, error) {
	appCfg := config.Load()

	if err := logging.Init(logging.Config{Level: appCfg.LogLevel, Format: appCfg.LogFormat}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := logging.L()

	database, err := db.OpenWithDriver(appCfg.DBDriver, appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := settings.NewStore(database)
	current, err := store.Load()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if dustBinary == "" {
		dustBinary = appCfg.DustPath
	}
	executor := dust.NewExecutor(logging.Named(logger, "dust"))
	executor.SetBinaryPath(dust.FindBinary(dustBinary))
	executor.SetTimeout(appCfg.DustTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := executor.CheckInstalled(ctx); err != nil {
		logger.Warn("dust not found, listings fall back to reading directories",
			zap.Error(err),
			zap.String("install", "https://github.com/bootandy/dust"))
	}
	cancel()

	registry := services.NewRegistry(services.RegistryConfig{
		DB:        database,
		Settings:  store,
		Lister:    executor,
		Retention: appCfg.TaskRetention,
		Logger:    logger,
	})
	if err := registry.Reconfigure(current); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to configure scanner: %w", err)
	}

	return &Core{
		Config:   appCfg,
		Database: database,
		Settings: store,
		Executor: executor,
		Registry: registry,
		Logger:   logger,
	}, nil
}

// Close stops running scans and closes the database.
func (c *Core) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Registry.Shutdown(ctx); err != nil {
		c.Logger.Warn("scans did not stop in time", zap.Error(err))
	}
	c.Database.Close()
	logging.Sync()
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	core, err := NewCore(cfg.DustBinary)
	if err != nil {
		return nil, err
	}
	appCfg := core.Config

	// Override port if specified
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}
	if cfg.BindAddress != "" {
		appCfg.BindAddress = cfg.BindAddress
	}

	core.Logger.Info("reclaim starting",
		zap.String("database", appCfg.DBPath),
		zap.String("driver", core.Database.Driver()),
		zap.Int("port", appCfg.Port),
		zap.Int("retentionDays", appCfg.RetentionDays),
		zap.String("dust", core.Executor.BinaryPath()))

	// Initialize scheduler
	sched := scheduler.New(core.Database, core.Registry, core.Logger)
	sched.Start()

	versionStr := buildVersionString(cfg.Version, cfg.Commit)

	h := handlers.New(handlers.Deps{
		DB:          core.Database,
		Config:      appCfg,
		Registry:    core.Registry,
		Settings:    core.Settings,
		Scheduler:   sched,
		Executor:    core.Executor,
		Static:      cfg.Static,
		Version:     versionStr,
		DisableCSRF: cfg.DisableCSRF,
		Logger:      core.Logger,
	})

	// Set up HTTP server
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appCfg.BindAddress, appCfg.Port),
		Handler:      logging.Middleware(core.Logger.Named("http"), h.CSRFMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		Core:      core,
		HTTP:      server,
		Scheduler: sched,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	s.Core.Close()
}

// StartCleanupLoop starts a background goroutine that periodically cleans up old data.
// Returns a cancel function and a done channel.
func (s *Server) StartCleanupLoop() (cancel func(), done <-chan struct{}) {
	cleanupDone := make(chan struct{})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				s.Logger.Info("running cleanup", zap.Int("retentionDays", s.Config.RetentionDays))
				if err := s.Database.CleanupOldData(s.Config.RetentionDays); err != nil {
					s.Logger.Error("cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	return cleanupCancel, cleanupDone
}

func buildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
