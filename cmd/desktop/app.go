package main

import (
	"context"

	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lyallcooper/reclaim/internal/files"
	"github.com/lyallcooper/reclaim/internal/types"
)

// App struct holds the Wails application context and provides
// methods that can be called from the frontend.
type App struct {
	ctx context.Context
}

// NewApp creates a new App instance.
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// OpenInFileManager reveals a file or folder in the system file manager.
func (a *App) OpenInFileManager(path string) error {
	return files.OpenLocation(path)
}

// OpenFolder opens a folder in the system file manager.
func (a *App) OpenFolder(path string) error {
	return files.OpenFolder(path)
}

// ChooseDirectory shows a native picker for the scan target. It returns ""
// when the dialog is cancelled.
func (a *App) ChooseDirectory(current string) (string, error) {
	return wruntime.OpenDirectoryDialog(a.ctx, wruntime.OpenDialogOptions{
		Title:            "Choose a directory to scan",
		DefaultDirectory: current,
	})
}

// DiskUsage reports the volume holding path.
func (a *App) DiskUsage(path string) (*types.Volume, error) {
	return files.Usage(path)
}
