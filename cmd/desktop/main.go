package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/app"
	"github.com/lyallcooper/reclaim/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := setDataDir(); err != nil {
		log.Printf("Warning: %v", err)
	}

	// Bind first so the port cannot be taken between picking and serving.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	server, err := app.CreateServer(app.ServerConfig{
		Port:        port,
		Version:     version,
		Commit:      commit,
		Static:      webfs.Static(),
		BindAddress: "127.0.0.1",
		DisableCSRF: true, // only the embedded webview can reach the listener
	})
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}
	logger := server.Logger
	stopCleanup, cleanupDone := server.StartCleanupLoop()

	backend, _ := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	desktop := NewApp()

	return wails.Run(&options.App{
		Title:     "Reclaim",
		Width:     1100,
		Height:    760,
		MinWidth:  760,
		MinHeight: 520,
		AssetServer: &assetserver.Options{
			Handler: httputil.NewSingleHostReverseProxy(backend),
		},
		OnStartup: func(ctx context.Context) {
			desktop.startup(ctx)
			go func() {
				logger.Info("internal server listening", zap.Int("port", port))
				if err := server.HTTP.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
					logger.Error("internal server failed", zap.Error(err))
				}
			}()
		},
		OnShutdown: func(ctx context.Context) {
			server.HTTP.Shutdown(ctx)
			stopCleanup()
			<-cleanupDone
			server.Cleanup()
		},
		Bind: []interface{}{desktop},
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "Reclaim",
				Message: "Find disk space that is safe to delete.\n\nVersion: " + displayVersion(),
			},
		},
	})
}

// setDataDir points the database at the per-user config directory unless
// RECLAIM_DB_PATH is already set.
func setDataDir() error {
	if os.Getenv("RECLAIM_DB_PATH") != "" {
		return nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("no user config directory: %w", err)
	}
	dir := filepath.Join(base, "Reclaim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create data directory: %w", err)
	}
	return os.Setenv("RECLAIM_DB_PATH", filepath.Join(dir, "reclaim.db"))
}

func displayVersion() string {
	if version == "dev" {
		return "Development"
	}
	return version
}
